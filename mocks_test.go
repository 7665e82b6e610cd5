package authgate_test

import (
	"context"
	"database/sql"

	authgate "github.com/corvid-labs/authgate"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// TestIdentity is a simple implementation of Identity interface for testing
type TestIdentity struct {
	id       string
	username string
	email    string
	role     string
}

func (t TestIdentity) ID() string       { return t.id }
func (t TestIdentity) Username() string { return t.username }
func (t TestIdentity) Email() string    { return t.email }
func (t TestIdentity) Role() string     { return t.role }

// MockIdentityProvider implements authgate.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (authgate.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if identity, ok := args.Get(0).(authgate.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (authgate.Identity, error) {
	args := m.Called(ctx, identifier)
	if identity, ok := args.Get(0).(authgate.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConfig implements authgate.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return("test-signing-key")
	mockConfig.On("GetTokenExpiration").Return(24)
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	mockConfig.On("GetContextKey").Return("user").Maybe()
	mockConfig.On("GetTokenLookup").Return("header:Authorization").Maybe()
	mockConfig.On("GetAuthScheme").Return("Bearer").Maybe()
	mockConfig.On("GetSigningMethod").Return("HS256").Maybe()
	return mockConfig
}

// MockActivitySink implements authgate.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event authgate.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockUserStore implements authgate.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByIdentifier(ctx context.Context, identifier string) (*authgate.User, error) {
	args := m.Called(ctx, identifier)
	if user, ok := args.Get(0).(*authgate.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUsers mocks the repository methods the registration path touches. The
// embedded interface covers the generic repository surface; calling an
// unmocked method panics, which is what we want in tests.
type MockUsers struct {
	repository.Repository[*authgate.User]
	mock.Mock
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*authgate.User, error) {
	args := m.Called(ctx, identifier)
	if user, ok := args.Get(0).(*authgate.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*authgate.User, error) {
	args := m.Called(ctx, tx, identifier)
	if user, ok := args.Get(0).(*authgate.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) Register(ctx context.Context, user *authgate.User) (*authgate.User, error) {
	args := m.Called(ctx, user)
	if out, ok := args.Get(0).(*authgate.User); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *authgate.User) (*authgate.User, error) {
	args := m.Called(ctx, tx, user)
	if out, ok := args.Get(0).(*authgate.User); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *authgate.User, criteria ...repository.InsertCriteria) (*authgate.User, error) {
	args := m.Called(ctx, record)
	if out, ok := args.Get(0).(*authgate.User); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *authgate.User, criteria ...repository.InsertCriteria) (*authgate.User, error) {
	args := m.Called(ctx, tx, record)
	if out, ok := args.Get(0).(*authgate.User); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRepositoryManager implements authgate.RepositoryManager. RunInTx runs
// the callback inline with a zero transaction so repository mocks observe
// every call.
type MockRepositoryManager struct {
	mock.Mock
	users *MockUsers
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{users: &MockUsers{}}
}

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Users() authgate.Users { return m.users }

// MockAuthenticator implements authgate.Authenticator
type MockAuthenticator struct {
	mock.Mock
	tokens authgate.TokenService
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	args := m.Called(ctx, identifier, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) IdentityFromToken(ctx context.Context, token string) (authgate.Identity, error) {
	args := m.Called(ctx, token)
	if identity, ok := args.Get(0).(authgate.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSubject(ctx context.Context, subject string) (authgate.Identity, error) {
	args := m.Called(ctx, subject)
	if identity, ok := args.Get(0).(authgate.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthenticator) TokenService() authgate.TokenService { return m.tokens }

// routerContext aliases the interface so embedding it does not collide with
// the Context method below.
type routerContext = router.Context

// MockRouterContext mocks the request surface the handlers and middleware
// touch. The embedded interface covers the rest of router.Context; calling an
// unmocked method panics.
type MockRouterContext struct {
	routerContext
	mock.Mock
	NextCalled bool
}

func (m *MockRouterContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockRouterContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockRouterContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockRouterContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockRouterContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockRouterContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockRouterContext) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

// localsWrites counts two-argument Locals calls, the write form. Reads take
// a single argument, so AssertNotCalled with mock.Anything cannot tell the
// two apart.
func localsWrites(m *mock.Mock) int {
	count := 0
	for _, call := range m.Calls {
		if call.Method == "Locals" && len(call.Arguments) == 2 {
			count++
		}
	}
	return count
}
