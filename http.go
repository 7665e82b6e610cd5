package authgate

import (
	"context"

	"github.com/corvid-labs/authgate/middleware/tokenware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the Authenticator into HTTP routes: it builds the
// request authentication middleware for protected routes and maps auth
// failures onto responses.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewHTTPAuthenticator creates a RouteAuthenticator for the given
// Authenticator and options.
func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// WithLogger overrides the logger used by route-level auth handling.
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = logger
	return a
}

// ProtectedRoute returns the middleware that authenticates every request on
// the route. Each request is resolved against the identity store anew; a
// token for a since deleted user is rejected even before it expires.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ErrorHandler:  errorHandler,
		Authenticator: a.RequestAuthenticator(),
		AuthScheme:    cfg.GetAuthScheme(),
		ContextKey:    cfg.GetContextKey(),
		TokenLookup:   cfg.GetTokenLookup(),
		ContextEnricher: func(ctx context.Context, identity tokenware.Identity) context.Context {
			resolved, ok := identity.(Identity)
			if !ok {
				return ctx
			}
			return WithAuthenticatedContext(ctx, resolved, nil)
		},
	})
}

// AuthorityRoute is ProtectedRoute plus an authority requirement; callers
// whose role does not grant the authority get a forbidden response.
func (a *RouteAuthenticator) AuthorityRoute(cfg Config, authority string, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ErrorHandler:      errorHandler,
		Authenticator:     a.RequestAuthenticator(),
		AuthScheme:        cfg.GetAuthScheme(),
		ContextKey:        cfg.GetContextKey(),
		TokenLookup:       cfg.GetTokenLookup(),
		RequiredAuthority: authority,
		AuthorityResolver: func(role string) []string {
			return UserRole(role).Authorities()
		},
	})
}

// RequestAuthenticator exposes the per request token flow the middleware
// drives.
func (a *RouteAuthenticator) RequestAuthenticator() tokenware.Authenticator {
	return requestAuthenticator{auth: a.auth}
}

// MakeAuthErrorHandler classifies middleware failures with the package error
// taxonomy before delegating to the configured handler. With optional set,
// failed requests proceed anonymously.
func (a *RouteAuthenticator) MakeAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Auth error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz, errors.CategoryNotFound:
		// malformed tokens get their own diagnostic so clients can tell a
		// broken credential apart from an expired or revoked one
		if richErr.TextCode == TextCodeTokenMalformed {
			return c.JSON(router.StatusUnauthorized, map[string]string{
				"error": "malformed authentication token",
			})
		}
		return c.JSON(router.StatusUnauthorized, map[string]string{
			"error": "invalid or expired token",
		})
	default:
		return c.JSON(router.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

// requestAuthenticator adapts the Authenticator to the middleware seam.
type requestAuthenticator struct {
	auth Authenticator
}

func (r requestAuthenticator) SubjectOf(token string) (string, error) {
	return r.auth.TokenService().SubjectOf(token)
}

func (r requestAuthenticator) ResolveIdentity(ctx context.Context, subject string) (tokenware.Identity, error) {
	identity, err := r.auth.IdentityFromSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (r requestAuthenticator) ValidateToken(token string, identity tokenware.Identity) bool {
	resolved, ok := identity.(Identity)
	if !ok {
		return false
	}
	return r.auth.TokenService().ValidateForIdentity(token, resolved)
}

var _ tokenware.Authenticator = requestAuthenticator{}
