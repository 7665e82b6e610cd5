// Package authgate implements stateless email/password authentication for
// HTTP services: registration and login issue signed, time-bounded JWTs, and
// a request interceptor validates the bearer token on every protected route
// before application logic runs.
//
// The package is organized around a few narrow seams:
//
//   - TokenService issues and validates tokens (HMAC-SHA256, fixed TTL).
//   - IdentityProvider verifies credentials and resolves token subjects
//     against the user store.
//   - middleware/tokenware intercepts requests and establishes the
//     request-scoped authenticated context (see ctx.go).
//
// No session state is kept server side; a token's validity is fully
// determined by its signature, its expiry, and the continued existence of
// its subject.
package authgate
