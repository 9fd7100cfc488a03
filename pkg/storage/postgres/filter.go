package postgres

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/permission"
)

// settingFields maps resource field names to columns. The scope's subject
// field is resolved separately because it shares the subject_id column.
var settingFields = map[string]string{
	"id":             "id",
	"organizationId": "tenant_id",
	"settingKey":     "setting_key",
	"createdBy":      "created_by",
	"updatedBy":      "updated_by",
}

// whereBuilder renders a permission.Filter as a SQL condition. Clauses on
// fields the resource does not have render as FALSE, matching
// permission.Filter.Matches.
type whereBuilder struct {
	scope api.Scope
	conds []string
	args  []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereBuilder) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) filter(f permission.Filter) error {
	for _, c := range f.Clauses {
		cond, err := w.clause(c)
		if err != nil {
			return err
		}
		w.add(cond)
	}
	return nil
}

func (w *whereBuilder) column(field string) (string, bool) {
	if col, ok := settingFields[field]; ok {
		return col, true
	}
	if sf := w.scope.SubjectField(); sf != "" && field == sf {
		return "subject_id", true
	}
	return "", false
}

func (w *whereBuilder) clause(c permission.Clause) (string, error) {
	switch c := c.(type) {
	case permission.Eq:
		col, ok := w.column(c.Field)
		// Every mapped column holds text.
		s, isString := c.Value.(string)
		if !ok || !isString {
			return "FALSE", nil
		}
		return col + " = " + w.arg(s), nil

	case permission.In:
		col, ok := w.column(c.Field)
		if !ok || len(c.Values) == 0 {
			return "FALSE", nil
		}
		return col + " = ANY(" + w.arg(c.Values) + ")", nil

	case permission.Match:
		col, ok := w.column(c.Field)
		if !ok {
			return "FALSE", nil
		}
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return "FALSE", nil
		}
		return col + " ~ " + w.arg(c.Pattern), nil

	case permission.Or:
		if len(c.Clauses) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, 0, len(c.Clauses))
		for _, sub := range c.Clauses {
			p, err := w.clause(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil

	default:
		return "", fmt.Errorf("unsupported filter clause %T", c)
	}
}
