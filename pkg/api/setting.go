package api

import "time"

// Scope identifies one of the four settings collections.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeClient  Scope = "client"
	ScopeUser    Scope = "user"
	ScopeDynamic Scope = "dynamic"
)

// ParseScope validates a scope name from a URL path.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeGlobal, ScopeClient, ScopeUser, ScopeDynamic:
		return Scope(s), true
	}
	return "", false
}

// ResourceType returns the grant key guarding this scope.
func (s Scope) ResourceType() string {
	switch s {
	case ScopeClient:
		return ResourceClientSettings
	case ScopeUser:
		return ResourceUserSettings
	case ScopeDynamic:
		return ResourceDynamicSettings
	default:
		return ResourceGlobalSettings
	}
}

// SubjectField returns the resource field holding the scope's owner id,
// or "" for global settings.
func (s Scope) SubjectField() string {
	switch s {
	case ScopeClient:
		return "clientId"
	case ScopeUser:
		return "userId"
	case ScopeDynamic:
		return "uniqueId"
	default:
		return ""
	}
}

// Setting is one stored key/value pair in one of the four scopes.
type Setting struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"organizationId"`
	Scope       Scope     `json:"scope"`
	ClientID    string    `json:"clientId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	UniqueID    string    `json:"uniqueId,omitempty"`
	Key         string    `json:"settingKey"`
	Value       any       `json:"settingValue"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SubjectID returns the owner id for the setting's scope.
func (s *Setting) SubjectID() string {
	switch s.Scope {
	case ScopeClient:
		return s.ClientID
	case ScopeUser:
		return s.UserID
	case ScopeDynamic:
		return s.UniqueID
	default:
		return ""
	}
}

// Fields exposes the setting as a flat field map for permission filters.
func (s *Setting) Fields() map[string]any {
	fields := map[string]any{
		"id":             s.ID,
		"organizationId": s.TenantID,
		"settingKey":     s.Key,
		"createdBy":      s.CreatedBy,
		"updatedBy":      s.UpdatedBy,
	}
	if f := s.Scope.SubjectField(); f != "" {
		fields[f] = s.SubjectID()
	}
	return fields
}
