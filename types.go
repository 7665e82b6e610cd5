package authgate

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the minimal structured logging surface the package needs.
// goliatone/go-logger's glog.Logger satisfies it directly.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider hands out named loggers so each component can log under
// its own channel.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	IdentityFromToken(ctx context.Context, token string) (Identity, error)
	IdentityFromSubject(ctx context.Context, subject string) (Identity, error)
	TokenService() TokenService
}

// Identity holds the attributes of an authenticated principal. Identifier
// returns the login identifier (the email), which is also the token subject.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// TokenService issues and validates signed identity tokens.
type TokenService interface {
	Generate(identity Identity) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	ValidateForIdentity(tokenString string, identity Identity) bool
	SubjectOf(tokenString string) (string, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// IdentityProvider ensures we have a store to retrieve auth identities
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// ResolveLogger resolves the logger a component should use: an explicitly
// configured logger wins, then a named logger from the provider, then the
// package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		provider = defLoggerProvider{}
	}

	if logger == nil {
		logger = provider.GetLogger(name)
	}

	return provider, logger
}

type defLoggerProvider struct{}

func (defLoggerProvider) GetLogger(name string) Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + logLine(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + logLine(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + logLine(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + logLine(msg, args))
}

// logLine renders the slog style key/value pairs callers pass after the
// message as key=value appendices.
func logLine(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=", args[i])
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v", args[i+1])
		}
	}
	return b.String()
}
