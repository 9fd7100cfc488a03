package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
)

func TestKey(t *testing.T) {
	k := Key("T1", "default", "Bearer abc")

	if !strings.HasPrefix(k, "auth:2:T1:7:default:") {
		t.Errorf("Key() = %q, want prefix auth:2:T1:7:default:", k)
	}
	if strings.Contains(k, "abc") {
		t.Errorf("Key() = %q leaks the raw credential", k)
	}
	if len(strings.TrimPrefix(k, "auth:2:T1:7:default:")) != 64 {
		t.Errorf("Key() hash part has unexpected length: %q", k)
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	type input struct{ tenant, name, credential string }
	tests := []struct {
		name string
		a, b input
	}{
		{"tenant", input{"T1", "default", "key-123"}, input{"T2", "default", "key-123"}},
		{"name", input{"T1", "default", "key-123"}, input{"T1", "other", "key-123"}},
		{"credential", input{"T1", "default", "key-123"}, input{"T1", "default", "key-999"}},
		{"missing credential", input{"T1", "default", "key-123"}, input{"T1", "default", ""}},
		{"separator in tenant or name", input{"a:b", "c", "k"}, input{"a", "b:c", "k"}},
		{"length digits in tenant", input{"1:a", "b", "k"}, input{"1", "a:1:b", "k"}},
		{"empty name", input{"acme:", "x", "k"}, input{"acme", ":x", "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key(tt.a.tenant, tt.a.name, tt.a.credential)
			kb := Key(tt.b.tenant, tt.b.name, tt.b.credential)
			if ka == kb {
				t.Errorf("Key(%q, %q) = Key(%q, %q) = %q", tt.a.tenant, tt.a.name, tt.b.tenant, tt.b.name, ka)
			}
		})
	}

	if Key("T1", "default", "") != Key("T1", "default", "none") {
		t.Error("missing credential should map to the \"none\" key")
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	if err := c.Put(ctx, "k", &api.AuthResult{OK: true}, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Noop.Get() should always miss")
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Errorf("InvalidateAll: %v", err)
	}
}
