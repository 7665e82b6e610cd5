package authgate_test

import (
	"context"
	"errors"
	"testing"

	authgate "github.com/corvid-labs/authgate"
	"github.com/corvid-labs/authgate/middleware/tokenware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRouteAuthenticatorFixture(t *testing.T) (*authgate.RouteAuthenticator, *MockIdentityProvider, *MockConfig) {
	t.Helper()

	provider := new(MockIdentityProvider)
	cfg := newMockConfig()
	auther := authgate.NewAuthenticator(provider, cfg)

	routeAuth, err := authgate.NewHTTPAuthenticator(auther, cfg)
	require.NoError(t, err)

	return routeAuth, provider, cfg
}

// Full round trip: a token issued at login authenticates a request through
// the protected-route middleware, and the identity lands in both locals and
// the request context.
func TestProtectedRouteRoundTrip(t *testing.T) {
	routeAuth, provider, cfg := newRouteAuthenticatorFixture(t)

	identity := TestIdentity{
		id:       "user-id-1",
		username: "testuser",
		email:    "test@example.com",
		role:     "user",
	}

	provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
		Return(identity, nil).Once()

	auther := authgate.NewAuthenticator(provider, cfg)
	token, err := auther.Login(context.Background(), identity.email, "password123")
	require.NoError(t, err)

	provider.On("FindIdentityByIdentifier", mock.Anything, identity.email).
		Return(identity, nil).Once()

	var enriched context.Context
	ctx := new(MockRouterContext)
	ctx.On("Locals", "user").Return(nil)
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", "user", mock.Anything).Return(nil)
	ctx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		enriched = args.Get(0).(context.Context)
	})

	nextCalled := false
	next := func(c router.Context) error {
		nextCalled = true
		return nil
	}

	middleware := routeAuth.ProtectedRoute(cfg, routeAuth.MakeAuthErrorHandler(false))
	require.NoError(t, middleware(next)(ctx))
	assert.True(t, nextCalled)

	require.NotNil(t, enriched)
	resolved := authgate.IdentityFromContext(enriched)
	require.NotNil(t, resolved)
	assert.Equal(t, identity.Email(), resolved.Email())
}

func TestProtectedRouteRejectsDeletedUser(t *testing.T) {
	routeAuth, provider, cfg := newRouteAuthenticatorFixture(t)

	identity := TestIdentity{
		id:    "user-id-1",
		email: "gone@example.com",
		role:  "user",
	}

	provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
		Return(identity, nil).Once()

	auther := authgate.NewAuthenticator(provider, cfg)
	token, err := auther.Login(context.Background(), identity.email, "password123")
	require.NoError(t, err)

	// account deleted after the token was issued
	provider.On("FindIdentityByIdentifier", mock.Anything, identity.email).
		Return(nil, authgate.ErrIdentityNotFound).Once()

	ctx := new(MockRouterContext)
	ctx.On("Locals", "user").Return(nil)
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background())

	var handled error
	capture := func(c router.Context, err error) error {
		handled = err
		return nil
	}

	nextCalled := false
	next := func(c router.Context) error {
		nextCalled = true
		return nil
	}

	middleware := routeAuth.ProtectedRoute(cfg, capture)
	require.NoError(t, middleware(next)(ctx))
	assert.False(t, nextCalled)
	assert.Error(t, handled)
	assert.Zero(t, localsWrites(&ctx.Mock), "no identity should be stored")
}

func TestAuthorityRoute(t *testing.T) {
	login := func(t *testing.T, provider *MockIdentityProvider, cfg authgate.Config, identity TestIdentity) string {
		t.Helper()
		provider.On("VerifyIdentity", mock.Anything, identity.email, "password123").
			Return(identity, nil).Once()
		token, err := authgate.NewAuthenticator(provider, cfg).
			Login(context.Background(), identity.email, "password123")
		require.NoError(t, err)
		return token
	}

	newRequestCtx := func(token string) *MockRouterContext {
		ctx := new(MockRouterContext)
		ctx.On("Locals", "user").Return(nil)
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", "user", mock.Anything).Return(nil)
		return ctx
	}

	t.Run("admin reaches admin routes", func(t *testing.T) {
		routeAuth, provider, cfg := newRouteAuthenticatorFixture(t)
		admin := TestIdentity{id: "admin-1", email: "admin@example.com", role: "admin"}

		token := login(t, provider, cfg, admin)
		provider.On("FindIdentityByIdentifier", mock.Anything, admin.email).
			Return(admin, nil).Once()

		nextCalled := false
		next := func(c router.Context) error {
			nextCalled = true
			return nil
		}

		middleware := routeAuth.AuthorityRoute(cfg, authgate.AuthorityAdmin, func(c router.Context, err error) error {
			return err
		})
		require.NoError(t, middleware(next)(newRequestCtx(token)))
		assert.True(t, nextCalled)
	})

	t.Run("regular user is forbidden", func(t *testing.T) {
		routeAuth, provider, cfg := newRouteAuthenticatorFixture(t)
		user := TestIdentity{id: "user-1", email: "user@example.com", role: "user"}

		token := login(t, provider, cfg, user)
		provider.On("FindIdentityByIdentifier", mock.Anything, user.email).
			Return(user, nil).Once()

		var handled error
		middleware := routeAuth.AuthorityRoute(cfg, authgate.AuthorityAdmin, func(c router.Context, err error) error {
			handled = err
			return nil
		})

		nextCalled := false
		next := func(c router.Context) error {
			nextCalled = true
			return nil
		}

		require.NoError(t, middleware(next)(newRequestCtx(token)))
		assert.False(t, nextCalled)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(handled, &richErr))
		assert.Equal(t, goerrors.CategoryAuthz, richErr.Category)
	})
}

func TestMakeAuthErrorHandler(t *testing.T) {
	t.Run("classifies expiry", func(t *testing.T) {
		routeAuth, _, _ := newRouteAuthenticatorFixture(t)

		var handled error
		routeAuth.ErrorHandler = func(c router.Context, err error) error {
			handled = err
			return nil
		}

		handler := routeAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(new(MockRouterContext), authgate.ErrTokenExpired))
		assert.ErrorIs(t, handled, authgate.ErrTokenExpired)

		require.NoError(t, handler(new(MockRouterContext), errors.New("token is expired by 2h")))
		assert.ErrorIs(t, handled, authgate.ErrTokenExpired)
	})

	t.Run("classifies structural rejects as malformed", func(t *testing.T) {
		routeAuth, _, _ := newRouteAuthenticatorFixture(t)

		var handled error
		routeAuth.ErrorHandler = func(c router.Context, err error) error {
			handled = err
			return nil
		}

		handler := routeAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(new(MockRouterContext), tokenware.ErrTokenStructure))
		assert.ErrorIs(t, handled, authgate.ErrTokenMalformed)
	})

	t.Run("unclassified failures stay unauthorized", func(t *testing.T) {
		routeAuth, _, _ := newRouteAuthenticatorFixture(t)

		var handled error
		routeAuth.ErrorHandler = func(c router.Context, err error) error {
			handled = err
			return nil
		}

		handler := routeAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(new(MockRouterContext), errors.New("boom")))

		var richErr *goerrors.Error
		require.True(t, goerrors.As(handled, &richErr))
		assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
	})

	t.Run("optional proceeds anonymously", func(t *testing.T) {
		routeAuth, _, _ := newRouteAuthenticatorFixture(t)

		ctx := new(MockRouterContext)
		handler := routeAuth.MakeAuthErrorHandler(true)
		require.NoError(t, handler(ctx, authgate.ErrTokenExpired))
		assert.True(t, ctx.NextCalled)
	})
}

func TestRouteAuthenticatorDefaultErrHandler(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"auth failure", authgate.ErrTokenExpired, router.StatusUnauthorized, "invalid or expired token"},
		{"malformed token", authgate.ErrTokenMalformed, router.StatusUnauthorized, "malformed authentication token"},
		{"authz failure", goerrors.New("denied", goerrors.CategoryAuthz), router.StatusUnauthorized, "invalid or expired token"},
		{"anything else", errors.New("boom"), router.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			routeAuth, _, _ := newRouteAuthenticatorFixture(t)

			ctx := new(MockRouterContext)
			ctx.On("JSON", tc.status, map[string]string{"error": tc.body}).Return(nil)

			require.NoError(t, routeAuth.ErrorHandler(ctx, tc.err))
			ctx.AssertExpectations(t)
		})
	}
}
