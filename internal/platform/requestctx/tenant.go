// Package requestctx carries the authenticated tenant scope through request
// contexts.
package requestctx

import (
	"context"
	"strings"
)

// PublicTenant is the partition key used when no tenant context applies.
const PublicTenant = "public"

// Scope identifies the tenant and project a request was authenticated for.
type Scope struct {
	TenantID       string
	ProjectID      string
	AllowedOrigins []string
}

// TenantKey returns the partition key for the scope.
func (s Scope) TenantKey() string {
	if tenant := strings.TrimSpace(s.TenantID); tenant != "" {
		return tenant
	}
	return PublicTenant
}

type scopeContextKey struct{}

// WithScope stores an authenticated scope in context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope stored in context and whether one was set.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}

// TenantKeyFromContext returns the tenant partition key for ctx, or
// PublicTenant when no scope is present.
func TenantKeyFromContext(ctx context.Context) string {
	scope, _ := ScopeFromContext(ctx)
	return scope.TenantKey()
}
