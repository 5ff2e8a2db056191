package kernel

import "context"

// AuthContext is the authenticated caller attached to every request
type AuthContext struct {
	UserID         UserID         `json:"user_id"`
	Email          string         `json:"email"`
	OrganizationID OrganizationID `json:"organization_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	IsAPIKey       bool           `json:"is_api_key"`
}

// HasPermission matches exact permissions, "*" and "resource:*" wildcards.
func (ac *AuthContext) HasPermission(permission string) bool {
	for _, p := range ac.Permissions {
		if p == permission || p == "*" {
			return true
		}
		if len(p) > 2 && p[len(p)-2:] == ":*" {
			prefix := p[:len(p)-1]
			if len(permission) > len(prefix) && permission[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}

// HasAllPermissions reports whether every permission is held
func (ac *AuthContext) HasAllPermissions(permissions ...string) bool {
	for _, p := range permissions {
		if !ac.HasPermission(p) {
			return false
		}
	}
	return true
}

type ContextKey string

const (
	// AuthContextKey stores *AuthContext in context.Context and fiber locals
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request id
	RequestIDKey ContextKey = "request_id"
)

// WithAuth returns a copy of ctx carrying ac
func WithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// AuthFromContext extracts the caller set by WithAuth
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok && ac != nil
}
