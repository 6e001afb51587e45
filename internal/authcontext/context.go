package authcontext

import (
	"context"

	"github.com/smallbiznis/levy/internal/auth/domain"
)

// PrincipalContextKey is the request context key for the authenticated caller.
type PrincipalContextKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey{}, principal)
}

// PrincipalFromContext returns the principal from context, if set.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	if ctx == nil {
		return domain.Principal{}, false
	}
	principal, ok := ctx.Value(PrincipalContextKey{}).(domain.Principal)
	if !ok || !principal.Valid() {
		return domain.Principal{}, false
	}
	return principal, true
}
