package auth

import "context"

type principalKey struct{}

// ContextWithPrincipal stores the caller resolved by Authenticate.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by ContextWithPrincipal.
// Anonymous requests report false.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.User.ID != 0
}
