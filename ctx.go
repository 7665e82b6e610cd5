package authgate

import (
	"context"
)

type contextKey string

// ContextKeyIdentity is the context key under which the resolved identity
// travels once a request has been authenticated.
const ContextKeyIdentity contextKey = "authgate:identity"

// ContextKeyClaims carries the validated token claims alongside the identity.
const ContextKeyClaims contextKey = "authgate:claims"

// AuthenticatedContext is the per-request view of who is calling. It is
// built fresh for every authenticated request and discarded afterwards;
// nothing here survives across requests.
type AuthenticatedContext struct {
	Identity    Identity
	Claims      AuthClaims
	Authorities []string
}

// HasAuthority reports whether the caller carries the given authority.
func (a AuthenticatedContext) HasAuthority(authority string) bool {
	for _, have := range a.Authorities {
		if have == authority {
			return true
		}
	}
	return false
}

// HasRole reports whether the caller holds the given role.
func (a AuthenticatedContext) HasRole(role string) bool {
	if a.Claims == nil {
		return false
	}
	return a.Claims.HasRole(role)
}

// WithAuthenticatedContext attaches the authenticated caller to the request
// context.
func WithAuthenticatedContext(ctx context.Context, identity Identity, claims AuthClaims) context.Context {
	auth := AuthenticatedContext{
		Identity: identity,
		Claims:   claims,
	}

	if identity != nil {
		auth.Authorities = UserRole(identity.Role()).Authorities()
	}

	ctx = context.WithValue(ctx, ContextKeyIdentity, auth)
	if claims != nil {
		ctx = context.WithValue(ctx, ContextKeyClaims, claims)
	}

	return ctx
}

// AuthFromContext retrieves the authenticated caller, if any. The second
// return value is false on anonymous requests.
func AuthFromContext(ctx context.Context) (AuthenticatedContext, bool) {
	if ctx == nil {
		return AuthenticatedContext{}, false
	}

	auth, ok := ctx.Value(ContextKeyIdentity).(AuthenticatedContext)
	if !ok || auth.Identity == nil {
		return AuthenticatedContext{}, false
	}

	return auth, true
}

// IdentityFromContext returns the authenticated identity or nil for
// anonymous requests.
func IdentityFromContext(ctx context.Context) Identity {
	auth, ok := AuthFromContext(ctx)
	if !ok {
		return nil
	}
	return auth.Identity
}

// ClaimsFromContext returns the validated claims or nil for anonymous
// requests.
func ClaimsFromContext(ctx context.Context) AuthClaims {
	if ctx == nil {
		return nil
	}

	claims, ok := ctx.Value(ContextKeyClaims).(AuthClaims)
	if !ok {
		return nil
	}

	return claims
}
