package authgate

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// RegisterAuthRoutes mounts the authentication endpoints on the router.
// Both endpoints are public; everything else behind ProtectedRoute expects
// the bearer token these endpoints hand out.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.
		Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register.post")

	app.
		Post(controller.Routes.Authenticate, controller.AuthenticatePost).
		SetName("auth.authenticate.post")
}

type AuthControllerRoutes struct {
	Register     string
	Authenticate string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       Authenticator
	Activity     ActivitySink
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithControllerActivitySink routes registration outcomes to the sink.
func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = sink
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Register:     "/auth/register",
			Authenticate: "/auth/authenticate",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// AuthResponse is the success body for both endpoints. Nothing but the
// token goes over the wire.
type AuthResponse struct {
	Token string `json:"token"`
}

// AuthenticateRequest is the login payload.
type AuthenticateRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the login identifier
func (r AuthenticateRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword returns the password
func (r AuthenticateRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r AuthenticateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// AuthenticatePost verifies credentials and returns a fresh token. The
// failure body is identical for unknown emails and wrong passwords.
func (a *AuthController) AuthenticatePost(ctx router.Context) error {
	payload := new(AuthenticateRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("authenticate parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("authenticate validate payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "invalid payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(map[string]string{"email": payload.Email}))
		fmt.Println("=========================")
	}

	token, err := a.Auther.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		if IsAuthFailedError(err) {
			return ctx.JSON(router.StatusUnauthorized, map[string]any{
				"error": "invalid credentials",
			})
		}
		a.Logger.Error("authenticate login error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, AuthResponse{Token: token})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Phone     string `form:"phone_number" json:"phone_number"`
	Password  string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

// RegistrationCreate creates the account and returns its first token. A
// duplicate email is the one enumeration the endpoint allows, and it is a
// deliberate one: the UI needs to tell the user to sign in instead.
func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "invalid payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := RegisterUserHandler{
		Repo:     a.Repo,
		Tokens:   a.Auther.TokenService(),
		Activity: a.Activity,
	}

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		if IsDuplicateIdentityError(err) {
			return ctx.JSON(router.StatusBadRequest, map[string]any{
				"error": ErrDuplicateIdentity.Message,
			})
		}
		a.Logger.Error("register user execute", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(res.User))
		fmt.Println("============================")
	}

	return ctx.JSON(router.StatusOK, AuthResponse{Token: res.Token})
}

// ValidatePhoneNumber validates an optional phone number for the given
// default region.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return fmt.Errorf("invalid phone number: %w", err)
		}

		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("invalid phone number")
		}

		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		out["payload"] = err.Error()
		return out
	}

	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}

	return out
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 500 {
		return c.JSON(richErr.Code, map[string]any{
			"error": richErr.Message,
		})
	}

	return c.JSON(router.StatusInternalServerError, map[string]any{
		"error": "internal server error",
	})
}
