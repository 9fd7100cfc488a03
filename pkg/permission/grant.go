package permission

import (
	"errors"
	"sort"

	"github.com/rhuss/tenantgate/pkg/api"
)

// ErrDenied is returned by BuildListFilter when the grant does not allow
// the action at all.
var ErrDenied = errors.New("permission denied")

// HasAction reports whether the grant allows the action on the resource
// type in some form. A filtered rule counts as allowed.
func HasAction(g api.Grant, resourceType string, action api.Action) bool {
	return g.Rule(resourceType, action).Kind != api.RuleDenied
}

// CheckResourceAccess reports whether the grant allows the action on one
// specific resource. Filtered rules require every filter field to be
// present on the resource with an equal value.
func CheckResourceAccess(r Resource, g api.Grant, resourceType string, action api.Action) bool {
	rule := g.Rule(resourceType, action)
	switch rule.Kind {
	case api.RuleAllowed:
		return true
	case api.RuleFiltered:
		return filterFromRule(rule).Matches(r)
	default:
		return false
	}
}

// BuildListFilter converts the grant's rule for a list operation into a
// Filter. Allowed rules yield Unrestricted; denied rules yield ErrDenied.
func BuildListFilter(g api.Grant, resourceType string, action api.Action) (Filter, error) {
	rule := g.Rule(resourceType, action)
	switch rule.Kind {
	case api.RuleAllowed:
		return Unrestricted, nil
	case api.RuleFiltered:
		return filterFromRule(rule), nil
	default:
		return Filter{}, ErrDenied
	}
}

func filterFromRule(rule api.ActionRule) Filter {
	fields := make([]string, 0, len(rule.Filter))
	for field := range rule.Filter {
		fields = append(fields, field)
	}
	// Stable clause order keeps generated SQL deterministic.
	sort.Strings(fields)

	clauses := make([]Clause, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, Eq{Field: field, Value: rule.Filter[field]})
	}
	return Filter{Clauses: clauses}
}
