package permission

import (
	"regexp"
	"slices"
)

// Resource is the flat field view of a stored object that grants and
// filters are evaluated against.
type Resource map[string]any

// Clause is one condition of a Filter.
type Clause interface {
	matches(r Resource) bool
}

// Eq requires Field to equal Value.
type Eq struct {
	Field string
	Value any
}

// In requires Field to be one of Values.
type In struct {
	Field  string
	Values []string
}

// Match requires Field to match the regular expression Pattern.
type Match struct {
	Field   string
	Pattern string
}

// Or is satisfied when any of its clauses is.
type Or struct {
	Clauses []Clause
}

func (c Eq) matches(r Resource) bool {
	v, ok := r[c.Field]
	return ok && valuesEqual(v, c.Value)
}

func (c In) matches(r Resource) bool {
	s, ok := r[c.Field].(string)
	return ok && slices.Contains(c.Values, s)
}

func (c Match) matches(r Resource) bool {
	s, ok := r[c.Field].(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func (c Or) matches(r Resource) bool {
	for _, sub := range c.Clauses {
		if sub.matches(r) {
			return true
		}
	}
	return false
}

// Filter is a conjunction of clauses. The zero Filter matches everything.
type Filter struct {
	Clauses []Clause
}

// Unrestricted is the filter that matches every resource.
var Unrestricted = Filter{}

// IsUnrestricted reports whether the filter has no clauses.
func (f Filter) IsUnrestricted() bool {
	return len(f.Clauses) == 0
}

// And returns a new filter that additionally requires every clause of o.
func (f Filter) And(o Filter) Filter {
	if o.IsUnrestricted() {
		return f
	}
	clauses := make([]Clause, 0, len(f.Clauses)+len(o.Clauses))
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, o.Clauses...)
	return Filter{Clauses: clauses}
}

// Matches reports whether r satisfies every clause.
func (f Filter) Matches(r Resource) bool {
	for _, c := range f.Clauses {
		if !c.matches(r) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
