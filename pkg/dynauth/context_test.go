package dynauth

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFromRequest_BodyIsRestored(t *testing.T) {
	r := httptest.NewRequest("POST", "/x", strings.NewReader(`{"settingKey":"theme"}`))

	rc, err := FromRequest(r, "T1", 0)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	body, ok := rc.Body.(map[string]any)
	if !ok || body["settingKey"] != "theme" {
		t.Errorf("Body = %#v", rc.Body)
	}

	again, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading restored body: %v", err)
	}
	if string(again) != `{"settingKey":"theme"}` {
		t.Errorf("restored body = %q", again)
	}
}

func TestFromRequest_NonJSONBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/x", strings.NewReader("a=b"))
	rc, err := FromRequest(r, "T1", 0)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if rc.Body != nil {
		t.Errorf("Body = %#v, want nil", rc.Body)
	}
}

func TestFromRequest_BodyTooLarge(t *testing.T) {
	r := httptest.NewRequest("POST", "/x", strings.NewReader(strings.Repeat("x", 65)))
	_, err := FromRequest(r, "T1", 64)
	if !errors.Is(err, errBodyTooLarge) {
		t.Errorf("err = %v, want errBodyTooLarge", err)
	}
}

func TestFromRequest_HeadersAndQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?a=1&a=2&b=3", nil)
	r.Header.Add("X-Multi", "first")
	r.Header.Add("X-Multi", "second")

	rc, err := FromRequest(r, "T1", 0)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if rc.Headers["x-multi"] != "first" {
		t.Errorf("x-multi = %q, want first", rc.Headers["x-multi"])
	}
	if rc.Query["a"] != "1" || rc.Query["b"] != "3" {
		t.Errorf("Query = %v", rc.Query)
	}
	if rc.TenantID != "T1" {
		t.Errorf("TenantID = %q", rc.TenantID)
	}
}

func TestRequestOmitsTenant(t *testing.T) {
	rc := testContext()
	req := rc.Request()
	if _, ok := req["organizationId"]; ok {
		t.Error("script request view should not carry organizationId")
	}
	headers := req["headers"].(map[string]any)
	if headers["x-api-key"] != "key-123" {
		t.Errorf("headers = %v", headers)
	}
}
