package authgate_test

import (
	"testing"
	"time"

	authgate "github.com/corvid-labs/authgate"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func newTestTokenService() authgate.TokenService {
	return authgate.NewTokenService(testSigningKey, 24, "test-issuer", []string{"test:audience"}, nil)
}

func newTestIdentity() TestIdentity {
	return TestIdentity{
		id:       uuid.New().String(),
		username: "testuser",
		email:    "test@example.com",
		role:     "user",
	}
}

func TestTokenServiceGenerate(t *testing.T) {
	ts := newTestTokenService()
	identity := newTestIdentity()

	before := time.Now()
	token, err := ts.Generate(identity)
	after := time.Now()

	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, identity.Email(), claims.Subject())
	assert.Equal(t, identity.ID(), claims.UserID())
	assert.Equal(t, identity.Role(), claims.Role())

	// exp is iat + 24h
	issuedAt := claims.IssuedAt()
	expires := claims.Expires()
	assert.False(t, issuedAt.Before(before.Truncate(time.Second)))
	assert.False(t, issuedAt.After(after.Add(time.Second)))
	assert.Equal(t, 24*time.Hour, expires.Sub(issuedAt))

	jwtClaims, ok := claims.(*authgate.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "test-issuer", jwtClaims.RegisteredClaims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"test:audience"}, jwtClaims.RegisteredClaims.Audience)
	assert.NotEmpty(t, jwtClaims.RegisteredClaims.ID)
}

func TestTokenServiceValidateRejectsTamperedSignature(t *testing.T) {
	ts := newTestTokenService()
	identity := newTestIdentity()

	token, err := ts.Generate(identity)
	require.NoError(t, err)

	claims, err := ts.Validate(token + "tampered")
	assert.Nil(t, claims)
	assert.Error(t, err)
	assert.True(t, authgate.IsMalformedError(err))
}

func TestTokenServiceValidateRejectsForeignKey(t *testing.T) {
	identity := newTestIdentity()

	other := authgate.NewTokenService([]byte("another-key"), 24, "test-issuer", []string{"test:audience"}, nil)
	token, err := other.Generate(identity)
	require.NoError(t, err)

	ts := newTestTokenService()
	claims, err := ts.Validate(token)
	assert.Nil(t, claims)
	assert.True(t, authgate.IsMalformedError(err))
}

func TestTokenServiceValidateRejectsExpired(t *testing.T) {
	ts := newTestTokenService()
	identity := newTestIdentity()
	now := time.Now()

	claims := &authgate.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   identity.Email(),
			Audience:  jwt.ClaimStrings{"test:audience"},
			IssuedAt:  jwt.NewNumericDate(now.Add(-48 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-24 * time.Hour)),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
	}

	token, err := ts.SignClaims(claims)
	require.NoError(t, err)

	parsed, err := ts.Validate(token)
	assert.Nil(t, parsed)
	assert.ErrorIs(t, err, authgate.ErrTokenExpired)
	assert.True(t, authgate.IsTokenExpiredError(err))

	assert.False(t, ts.ValidateForIdentity(token, identity))
}

func TestTokenServiceValidateForIdentity(t *testing.T) {
	ts := newTestTokenService()
	identity := newTestIdentity()

	token, err := ts.Generate(identity)
	require.NoError(t, err)

	t.Run("issued identity validates", func(t *testing.T) {
		assert.True(t, ts.ValidateForIdentity(token, identity))
	})

	t.Run("different identity does not", func(t *testing.T) {
		other := TestIdentity{
			id:       uuid.New().String(),
			username: "other",
			email:    "other@example.com",
			role:     "user",
		}
		assert.False(t, ts.ValidateForIdentity(token, other))
	})

	t.Run("nil identity does not", func(t *testing.T) {
		assert.False(t, ts.ValidateForIdentity(token, nil))
	})

	t.Run("tampered token does not", func(t *testing.T) {
		assert.False(t, ts.ValidateForIdentity(token+"x", identity))
	})
}

func TestTokenServiceSubjectOf(t *testing.T) {
	ts := newTestTokenService()
	identity := newTestIdentity()

	token, err := ts.Generate(identity)
	require.NoError(t, err)

	t.Run("returns the subject without validating", func(t *testing.T) {
		subject, err := ts.SubjectOf(token)
		require.NoError(t, err)
		assert.Equal(t, identity.Email(), subject)
	})

	t.Run("rejects non compact serializations", func(t *testing.T) {
		for _, bad := range []string{"", "garbage", "a.b", "a.b.c.d"} {
			_, err := ts.SubjectOf(bad)
			assert.ErrorIs(t, err, authgate.ErrTokenMalformed)
		}
	})
}
