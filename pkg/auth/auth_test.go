package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockAuthn struct {
	result AuthResult
	calls  int
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	m.calls++
	return m.result
}

func yes(subject string) *mockAuthn {
	return &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: subject}}}
}

func no() *mockAuthn     { return &mockAuthn{result: AuthResult{Decision: No, Err: ErrUnauthenticated}} }
func abstain() *mockAuthn { return &mockAuthn{result: AuthResult{Decision: Abstain}} }

func TestAuthChain(t *testing.T) {
	tests := []struct {
		name        string
		authns      []*mockAuthn
		def         AuthDecision
		want        AuthDecision
		wantSubject string
		wantCalls   []int
	}{
		{"first yes stops", []*mockAuthn{yes("alice"), no()}, No, Yes, "alice", []int{1, 0}},
		{"first no stops", []*mockAuthn{no(), yes("bob")}, No, No, "", []int{1, 0}},
		{"abstain then yes", []*mockAuthn{abstain(), yes("ops")}, No, Yes, "ops", []int{1, 1}},
		{"all abstain rejects", []*mockAuthn{abstain(), abstain()}, No, No, "", []int{1, 1}},
		{"all abstain admits anonymous", []*mockAuthn{abstain()}, Yes, Yes, "anonymous", []int{1}},
		{"empty chain rejects", nil, No, No, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{DefaultDecision: tt.def}
			for _, a := range tt.authns {
				chain.Authenticators = append(chain.Authenticators, a)
			}

			got := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
			if got.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", got.Decision, tt.want)
			}
			if tt.want == Yes && got.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", got.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && got.Err == nil {
				t.Error("Err = nil for a rejection")
			}
			for i, a := range tt.authns {
				if a.calls != tt.wantCalls[i] {
					t.Errorf("authenticator %d calls = %d, want %d", i, a.calls, tt.wantCalls[i])
				}
			}
		})
	}
}

func TestAuthDecisionString(t *testing.T) {
	for d, want := range map[AuthDecision]string{Yes: "yes", No: "no", Abstain: "abstain", 7: "unknown"} {
		if got := d.String(); got != want {
			t.Errorf("AuthDecision(%d).String() = %q, want %q", int(d), got, want)
		}
	}
}

func TestIdentityAccessors(t *testing.T) {
	var missing *Identity
	if missing.TenantID() != "" || missing.IsOperator() {
		t.Error("nil identity should have no tenant and not be an operator")
	}

	id := &Identity{Subject: "alice", Tenant: "org-1"}
	if id.TenantID() != "org-1" {
		t.Errorf("TenantID() = %q, want org-1", id.TenantID())
	}
	if id.IsOperator() {
		t.Error("identity without scope reported as operator")
	}
}

func TestIdentityContext(t *testing.T) {
	if IdentityFromContext(context.Background()) != nil {
		t.Error("expected nil identity from empty context")
	}

	id := &Identity{Subject: "alice"}
	if got := IdentityFromContext(SetIdentity(context.Background(), id)); got != id {
		t.Errorf("IdentityFromContext() = %v, want %v", got, id)
	}
}
