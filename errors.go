package authgate

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside the HTTP status.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound)

// ErrMismatchedHashAndPassword is the single externally visible credential
// failure. Unknown identifier and wrong password both map here so a caller
// cannot probe which accounts exist.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrDuplicateIdentity is returned when registering an email that is
// already taken. Registration deliberately names the conflict while login
// stays uninformative; see DESIGN.md for the policy decision.
var ErrDuplicateIdentity = errors.New("email is already in use", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity)

// ErrTokenExpired marks a token past its expiry instant. A token exactly at
// its expiry is already expired.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed marks a token that fails structural or signature checks.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrUnableToDecodeSession unable to decode claims from a validated token
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError)

// ErrNoEmptyString rejects empty passwords before they reach the hasher
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for structurally invalid tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	// "malformed authorization token" is the middleware's structural
	// rejection; matched by text so this package does not import it.
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "malformed authorization token") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsDuplicateIdentityError reports whether err is the duplicate-email
// registration failure.
func IsDuplicateIdentityError(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity)
}

// IsAuthFailedError reports whether err is the uniform credential failure.
func IsAuthFailedError(err error) bool {
	return errors.Is(err, ErrMismatchedHashAndPassword)
}
