package permission

import (
	"regexp"
	"slices"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Resource field names used by constraint filters.
const (
	FieldOrganizationID = "organizationId"
	FieldClientID       = "clientId"
	FieldUserID         = "userId"
)

// IsOrgAllowed reports whether the operator may act within orgID.
func IsOrgAllowed(op api.OperatorScope, orgID string) bool {
	if op.Organizations == api.OrganizationsAll || len(op.OrganizationIDs) == 0 {
		return true
	}
	return slices.Contains(op.OrganizationIDs, orgID)
}

// IsClientAllowed reports whether clientID passes the client constraint.
func IsClientAllowed(c api.ResourceConstraints, clientID string) bool {
	if len(c.ClientIDs) == 0 {
		return true
	}
	return slices.Contains(c.ClientIDs, clientID)
}

// IsUserIDAllowed reports whether userID passes the user constraints. An
// id is allowed when both lists are empty, when it is listed exactly, or
// when any pattern rule matches it.
func IsUserIDAllowed(c api.ResourceConstraints, userID string) bool {
	if len(c.UserIDs) == 0 && len(c.UserIDPatterns) == 0 {
		return true
	}
	if slices.Contains(c.UserIDs, userID) {
		return true
	}
	for _, p := range c.UserIDPatterns {
		if MatchesPattern(p, userID) {
			return true
		}
	}
	return false
}

// MatchesPattern applies a single pattern rule to value. Invalid regular
// expressions and unknown match types never match.
func MatchesPattern(p api.PatternRule, value string) bool {
	switch p.MatchType {
	case api.MatchExact:
		return value == p.Pattern
	case api.MatchPrefix:
		return strings.HasPrefix(value, p.Pattern)
	case api.MatchSuffix:
		return strings.HasSuffix(value, p.Pattern)
	case api.MatchContains:
		return strings.Contains(value, p.Pattern)
	case api.MatchRegex:
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

// OrgFilter restricts a list to the operator's organizations.
func OrgFilter(op api.OperatorScope) Filter {
	if op.Organizations == api.OrganizationsAll || len(op.OrganizationIDs) == 0 {
		return Unrestricted
	}
	return Filter{Clauses: []Clause{In{Field: FieldOrganizationID, Values: op.OrganizationIDs}}}
}

// ClientFilter restricts a list to the allowed client ids.
func ClientFilter(c api.ResourceConstraints) Filter {
	if len(c.ClientIDs) == 0 {
		return Unrestricted
	}
	return Filter{Clauses: []Clause{In{Field: FieldClientID, Values: c.ClientIDs}}}
}

// UserIDFilter restricts a list to the allowed user ids and patterns.
func UserIDFilter(c api.ResourceConstraints) Filter {
	if len(c.UserIDs) == 0 && len(c.UserIDPatterns) == 0 {
		return Unrestricted
	}

	var alts []Clause
	if len(c.UserIDs) > 0 {
		alts = append(alts, In{Field: FieldUserID, Values: c.UserIDs})
	}
	for _, p := range c.UserIDPatterns {
		if re, ok := patternRegex(p); ok {
			alts = append(alts, Match{Field: FieldUserID, Pattern: re})
		}
	}
	if len(alts) == 0 {
		// Only invalid patterns: nothing can match.
		alts = append(alts, In{Field: FieldUserID})
	}
	return Filter{Clauses: []Clause{Or{Clauses: alts}}}
}

// patternRegex expresses a pattern rule as a regular expression usable by
// both Go and PostgreSQL.
func patternRegex(p api.PatternRule) (string, bool) {
	q := regexp.QuoteMeta(p.Pattern)
	switch p.MatchType {
	case api.MatchExact:
		return "^" + q + "$", true
	case api.MatchPrefix:
		return "^" + q, true
	case api.MatchSuffix:
		return q + "$", true
	case api.MatchContains:
		return q, true
	case api.MatchRegex:
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return "", false
		}
		return p.Pattern, true
	default:
		return "", false
	}
}
