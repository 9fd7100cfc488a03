package dynauth

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// placeholder matches {{ path }} and {{{ path }}}. Both forms substitute
// the raw value; nothing is escaped.
var placeholder = regexp.MustCompile(`\{\{\{\s*([^{}]*?)\s*\}\}\}|\{\{\s*([^{}]*?)\s*\}\}`)

// Render substitutes every placeholder in tmpl with the value found at its
// dotted path in the request context document. Missing values render as
// the empty string; objects and arrays render as compact JSON.
func Render(tmpl string, rc *RequestContext) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	doc := rc.Document()
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		path := sub[1]
		if path == "" {
			path = sub[2]
		}
		if path == "" {
			return ""
		}
		return lookup(doc, path)
	})
}

// RenderMap renders every value of m. A nil map renders to nil.
func RenderMap(m map[string]string, rc *RequestContext) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Render(v, rc)
	}
	return out
}

func lookup(doc []byte, path string) string {
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return ""
	}
	switch res.Type {
	case gjson.Null:
		return ""
	case gjson.JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(res.Raw)); err != nil {
			return res.Raw
		}
		return buf.String()
	default:
		return res.String()
	}
}
