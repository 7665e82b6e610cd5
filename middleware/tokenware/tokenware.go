package tokenware

import (
	"context"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization

	// ErrTokenMissing is returned when no credential was presented at all.
	ErrTokenMissing = errors.New("missing authorization token")
	// ErrTokenStructure is returned when the presented credential is not a
	// three segment compact serialization.
	ErrTokenStructure = errors.New("malformed authorization token")
	// ErrTokenRejected is returned when a structurally sound token fails
	// validation against the resolved identity.
	ErrTokenRejected = errors.New("invalid or expired token")
)

// Identity mirrors the identity surface of the auth package. Declared
// locally to avoid an import cycle.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// Authenticator is the collaborator the middleware drives for each request:
// read the subject off the raw token, resolve it to a live identity, then
// validate the token against that identity.
type Authenticator interface {
	SubjectOf(token string) (string, error)
	ResolveIdentity(ctx context.Context, subject string) (Identity, error)
	ValidateToken(token string, identity Identity) bool
}

// ValidationListener is invoked after a token has been validated, before the
// request proceeds.
type ValidationListener func(ctx router.Context, identity Identity) error

type Config struct {
	// Filter skips the middleware for matching requests.
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// Authenticator is required.
	Authenticator Authenticator

	// ContextKey is the locals key under which the resolved identity is
	// stored. A request that already carries an identity under this key is
	// passed through untouched.
	ContextKey string

	// TokenLookup is a comma separated list of <source>:<name> entries,
	// e.g. "header:Authorization,cookie:jwt,query:token".
	TokenLookup string
	AuthScheme  string

	// Optional lets unauthenticated requests through anonymously instead of
	// rejecting them. The resolved identity, when present, is still attached.
	Optional bool

	// RequiredAuthority rejects authenticated callers that do not carry the
	// given authority.
	RequiredAuthority string

	// AuthorityResolver maps a role name to its authority set. Required when
	// RequiredAuthority is set.
	AuthorityResolver func(role string) []string

	// ContextEnricher propagates the identity into the standard context so
	// non-router code can read it.
	ContextEnricher func(ctx context.Context, identity Identity) context.Context

	ValidationListeners []ValidationListener
}

// New builds the request authentication middleware. Each request is handled
// independently: nothing resolved here outlives the request.
func New(config ...Config) router.MiddlewareFunc {
	cfg := setDefaults(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = cfg.ErrorHandler(ctx, goerrors.New(
						"authentication middleware panic",
						goerrors.CategoryInternal,
					).WithMetadata(map[string]any{"panic": r}))
				}
			}()

			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			if identity := ctx.Locals(cfg.ContextKey); identity != nil {
				return next(ctx)
			}

			raw := extractRawToken(ctx, cfg.extractors())
			if raw == "" {
				if cfg.Optional {
					return next(ctx)
				}
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if strings.Count(raw, ".") != 2 {
				return cfg.ErrorHandler(ctx, ErrTokenStructure)
			}

			subject, err := cfg.Authenticator.SubjectOf(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, ErrTokenStructure)
			}

			identity, err := cfg.Authenticator.ResolveIdentity(ctx.Context(), subject)
			if err != nil {
				if goerrors.IsNotFound(err) {
					return cfg.ErrorHandler(ctx, ErrTokenRejected)
				}
				return cfg.ErrorHandler(ctx, goerrors.Wrap(
					err,
					goerrors.CategoryInternal,
					"failed to resolve token subject",
				))
			}

			if identity == nil || !cfg.Authenticator.ValidateToken(raw, identity) {
				return cfg.ErrorHandler(ctx, ErrTokenRejected)
			}

			if err := cfg.runValidationListeners(ctx, identity); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.checkAuthority(identity); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, identity)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), identity))
			}

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(ctx)
			}

			return next(ctx)
		}
	}
}

func setDefaults(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: token middleware configuration: Authenticator is required.")
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// DefaultErrorHandler maps middleware failures onto HTTP statuses. Missing
// and malformed credentials get distinct unauthorized messages; anything the
// middleware could not classify is an internal error.
func DefaultErrorHandler(ctx router.Context, err error) error {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return ctx.Status(router.StatusUnauthorized).SendString(ErrTokenMissing.Error())
	case errors.Is(err, ErrTokenStructure):
		return ctx.Status(router.StatusUnauthorized).SendString(ErrTokenStructure.Error())
	case errors.Is(err, ErrTokenRejected):
		return ctx.Status(router.StatusUnauthorized).SendString(ErrTokenRejected.Error())
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuthz {
		return ctx.Status(router.StatusForbidden).SendString(richErr.Message)
	}

	return ctx.Status(router.StatusInternalServerError).SendString("internal server error")
}

func (cfg *Config) checkAuthority(identity Identity) error {
	if cfg.RequiredAuthority == "" {
		return nil
	}

	if cfg.AuthorityResolver == nil {
		return goerrors.New(
			"authority check configured without a resolver",
			goerrors.CategoryInternal,
		)
	}

	for _, authority := range cfg.AuthorityResolver(identity.Role()) {
		if authority == cfg.RequiredAuthority {
			return nil
		}
	}

	return goerrors.New(
		"access denied: missing required authority",
		goerrors.CategoryAuthz,
	).WithTextCode("FORBIDDEN").WithMetadata(map[string]any{
		"required": cfg.RequiredAuthority,
		"role":     identity.Role(),
	})
}

func (cfg *Config) runValidationListeners(ctx router.Context, identity Identity) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, identity); err != nil {
			return err
		}
	}
	return nil
}
