package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyToken          = ContextKey("Token")
	ContextKeyOrganizationId = ContextKey("OrganizationId")
	ContextKeyUsername       = ContextKey("Username")
	ContextKeyRole           = ContextKey("Role")
	ContextKeyCorrelationId  = ContextKey("CorrelationId")

	// ContextKeySkipTenantScope forces tenant scoping to be disabled for the statement.
	// Used for ownership lookups, where a foreign row must be seen to be rejected.
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

const (
	RoleAdmin = "admin"
	RoleCrew  = "crew"
)

// Principal is the already-verified caller of a core operation.
type Principal struct {
	OrganizationId string `json:"organization_id"`
	Role           string `json:"role"`
	Username       string `json:"username"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// WithPrincipal stores every principal field in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = Set(ctx, ContextKeyOrganizationId, p.OrganizationId)
	ctx = Set(ctx, ContextKeyRole, p.Role)
	return Set(ctx, ContextKeyUsername, p.Username)
}

// PrincipalFrom rebuilds the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	orgId, ok := GetString(ctx, ContextKeyOrganizationId)
	if !ok || orgId == "" {
		return Principal{}, false
	}
	role, _ := GetString(ctx, ContextKeyRole)
	username, _ := GetString(ctx, ContextKeyUsername)
	return Principal{OrganizationId: orgId, Role: role, Username: username}, true
}

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
