package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is an operation a grant can allow on a resource type.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Resource types used as PermissionGrant keys.
const (
	ResourceGlobalSettings  = "globalSettings"
	ResourceClientSettings  = "clientSettings"
	ResourceUserSettings    = "userSettings"
	ResourceDynamicSettings = "dynamicSettings"
	ResourceDynamicAuth     = "dynamicAuth"
	ResourceOrganizations   = "organizations"
)

// RuleKind discriminates the three shapes an action rule can take.
type RuleKind int

const (
	// RuleDenied is the zero value: false, null, or absent.
	RuleDenied RuleKind = iota

	// RuleAllowed grants unconditional access (true).
	RuleAllowed

	// RuleFiltered grants access only to resources whose fields equal
	// every value in Filter ({"filter": {...}}).
	RuleFiltered
)

func (k RuleKind) String() string {
	switch k {
	case RuleAllowed:
		return "allowed"
	case RuleFiltered:
		return "filtered"
	default:
		return "denied"
	}
}

// ActionRule is the value of one action in a grant.
type ActionRule struct {
	Kind   RuleKind
	Filter map[string]any // populated only when Kind == RuleFiltered
}

// Deny returns a rule that denies the action.
func Deny() ActionRule { return ActionRule{Kind: RuleDenied} }

// Allow returns a rule that grants the action unconditionally.
func Allow() ActionRule { return ActionRule{Kind: RuleAllowed} }

// AllowWhere returns a rule that grants the action on matching resources only.
func AllowWhere(filter map[string]any) ActionRule {
	return ActionRule{Kind: RuleFiltered, Filter: filter}
}

// MarshalJSON writes the rule back in its wire form: true, false, or {"filter": {...}}.
func (r ActionRule) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RuleAllowed:
		return []byte("true"), nil
	case RuleFiltered:
		return json.Marshal(struct {
			Filter map[string]any `json:"filter"`
		}{Filter: r.Filter})
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON accepts a boolean, null, or a single-level {"filter": {...}} object.
// Filter values must be scalars; nested objects and arrays are rejected.
func (r *ActionRule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch string(data) {
	case "true":
		*r = Allow()
		return nil
	case "false", "null":
		*r = Deny()
		return nil
	}

	var obj struct {
		Filter map[string]any `json:"filter"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("action rule must be a boolean or {\"filter\": {...}}: %w", err)
	}
	if obj.Filter == nil {
		// An object without a filter grants nothing.
		*r = Deny()
		return nil
	}
	for field, v := range obj.Filter {
		switch v.(type) {
		case string, float64, bool, nil:
		default:
			return fmt.Errorf("filter field %q: nested filter values are not supported", field)
		}
	}

	*r = AllowWhere(obj.Filter)
	return nil
}

// ResourcePermissions maps actions to rules for one resource type.
type ResourcePermissions map[Action]ActionRule

// Grant maps resource type names to their action rules.
type Grant map[string]ResourcePermissions

// Rule returns the rule for the resource type and action. Missing
// entries are reported as denied.
func (g Grant) Rule(resourceType string, action Action) ActionRule {
	if g == nil {
		return Deny()
	}
	perms, ok := g[resourceType]
	if !ok {
		return Deny()
	}
	return perms[action]
}

// GrantFromFlags builds a grant from plain read/write booleans, the
// shape used by operator configuration.
func GrantFromFlags(flags map[string]map[string]bool) Grant {
	if len(flags) == 0 {
		return nil
	}
	g := make(Grant, len(flags))
	for resource, actions := range flags {
		perms := make(ResourcePermissions, len(actions))
		for action, allowed := range actions {
			if allowed {
				perms[Action(action)] = Allow()
			} else {
				perms[Action(action)] = Deny()
			}
		}
		g[resource] = perms
	}
	return g
}
