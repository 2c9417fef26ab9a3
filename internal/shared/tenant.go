package shared

import "context"

// Tenant identifies the merchant scope and acting user of a request.
// It is threaded explicitly through every core call; no package keeps
// ambient tenant state.
type Tenant struct {
	MerchantID int64
	UserID     int64
}

// Valid reports whether the tenant carries a usable merchant scope.
func (t Tenant) Valid() bool { return t.MerchantID > 0 }

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context for transport layers.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant stored by the middleware.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.Valid()
}
