package script

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/dynauth/httpauth"
)

// sandbox holds the host side of one attempt's bindings.
type sandbox struct {
	vm      *goja.Runtime
	ctx     context.Context
	fetcher Fetcher
	now     func() time.Time
	logger  *slog.Logger

	// maxString bounds single allocations requested by the script.
	maxString int
}

// install defines the global bindings visible to the script.
func (s *sandbox) install(rc *dynauth.RequestContext) error {
	if err := s.guardAmplifiers(); err != nil {
		return err
	}

	logger := s.vm.NewObject()
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := logger.Set(name, s.logFunc(level)); err != nil {
			return err
		}
	}

	globals := map[string]any{
		"req":            rc.Request(),
		"organizationId": rc.TenantID,
		"atob":           s.base64Decode,
		"base64Decode":   s.base64Decode,
		"decodeToken":    s.decodeToken,
		"validateToken":  s.validateToken,
		"logger":         logger,
		"fetch":          s.fetch,
	}
	for name, v := range globals {
		if err := s.vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *sandbox) logFunc(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, s.stringify(a))
		}
		msg := strings.Join(parts, " ")
		if len(msg) > s.maxString {
			msg = msg[:s.maxString] + "..."
		}
		s.logger.Log(s.ctx, level, msg)
		return goja.Undefined()
	}
}

func (s *sandbox) stringify(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if _, ok := v.(*goja.Object); ok {
		if data, err := json.Marshal(v.Export()); err == nil {
			return string(data)
		}
	}
	return v.String()
}

// base64Decode accepts standard and URL alphabets, padded or not. Invalid
// input decodes to null.
func (s *sandbox) base64Decode(in string) goja.Value {
	in, ok := s.clip(in)
	if !ok {
		return goja.Null()
	}
	data, ok := decodeBase64(in)
	if !ok {
		return goja.Null()
	}
	return s.vm.ToValue(string(data))
}

func decodeBase64(in string) ([]byte, bool) {
	in = strings.TrimSpace(in)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(in); err == nil {
			return data, true
		}
	}
	return nil, false
}

// decodeToken returns the payload of a three-part token without verifying
// its signature, or null when the token is malformed.
func (s *sandbox) decodeToken(token string) goja.Value {
	token, ok := s.clip(token)
	if !ok {
		return goja.Null()
	}
	claims, ok := parseTokenPayload(token)
	if !ok {
		return goja.Null()
	}
	return s.vm.ToValue(map[string]any(claims))
}

func parseTokenPayload(token string) (jwt.MapClaims, bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, false
	}
	data, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		if data, ok := decodeBase64(parts[1]); ok {
			return unmarshalClaims(data)
		}
		return nil, false
	}
	return unmarshalClaims(data)
}

func unmarshalClaims(data []byte) (jwt.MapClaims, bool) {
	var claims jwt.MapClaims
	if err := json.Unmarshal(data, &claims); err != nil || claims == nil {
		return nil, false
	}
	return claims, true
}

// validateToken checks the exp claim of a decoded payload (or a raw token)
// and returns "<iss>|<sub>", or null when the token is expired, lacks an
// expiry or lacks a subject.
func (s *sandbox) validateToken(call goja.FunctionCall) goja.Value {
	claims, ok := s.claimsOf(call.Argument(0))
	if !ok {
		return goja.Null()
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(s.now()) {
		return goja.Null()
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return goja.Null()
	}
	iss, _ := claims.GetIssuer()
	return s.vm.ToValue(iss + "|" + sub)
}

func (s *sandbox) claimsOf(v goja.Value) (jwt.MapClaims, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	if token, ok := v.Export().(string); ok {
		if token, ok = s.clip(token); !ok {
			return nil, false
		}
		return parseTokenPayload(token)
	}
	// Round-trip through JSON so numbers reach the claim parser as float64.
	data, err := json.Marshal(v.Export())
	if err != nil {
		return nil, false
	}
	return unmarshalClaims(data)
}

// fetch issues an outbound call bounded by the attempt's deadline and
// returns {status, ok, headers, body, json()}. Transport failures throw.
func (s *sandbox) fetch(call goja.FunctionCall) goja.Value {
	if s.fetcher == nil {
		panic(s.vm.NewTypeError("fetch is not available"))
	}
	target := call.Argument(0).String()

	c := httpauth.Call{Method: "GET", URL: target}
	if opts, ok := call.Argument(1).(*goja.Object); ok {
		if m := opts.Get("method"); m != nil && !goja.IsUndefined(m) {
			c.Method = strings.ToUpper(m.String())
		}
		c.Headers = stringMap(opts.Get("headers"))
		c.Query = stringMap(opts.Get("query"))
		if b := opts.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
			c.Body = b.Export()
		}
	}

	resp, err := s.fetcher.Call(s.ctx, c)
	if err != nil {
		panic(s.vm.NewGoError(err))
	}

	body := string(resp.Body)
	obj := s.vm.NewObject()
	_ = obj.Set("status", resp.Status)
	_ = obj.Set("ok", resp.Status >= 200 && resp.Status < 300)
	_ = obj.Set("headers", resp.Headers)
	_ = obj.Set("body", body)
	_ = obj.Set("text", func() string { return body })
	_ = obj.Set("json", func() goja.Value {
		var v any
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			panic(s.vm.NewTypeError("response is not JSON"))
		}
		return s.vm.ToValue(v)
	})
	return obj
}

func stringMap(v goja.Value) map[string]string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, k := range obj.Keys() {
		out[k] = obj.Get(k).String()
	}
	return out
}
