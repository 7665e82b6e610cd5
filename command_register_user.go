package authgate

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage carries a new-account request. The plaintext password
// lives only for the duration of the command; it is hashed inside the
// transaction and never persisted, logged, or echoed back.
type RegisterUserMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserResponse is delivered through OnResponse on success.
type RegisterUserResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// RegisterUserHandler creates the identity and issues its first token.
// Activity is optional; registration outcomes are recorded through it.
type RegisterUserHandler struct {
	Repo     RepositoryManager
	Tokens   TokenService
	Activity ActivitySink
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Friendly duplicate check; the unique index on users.email is what
		// actually closes the race against concurrent registrations.
		if _, err := h.Repo.Users().GetByIdentifierTx(ctx, tx, event.Email); err == nil {
			return ErrDuplicateIdentity
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing user")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = getUsername(event.Username, event.Email)
		user.Role = defaultRole(event.Role)
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.Repo.Users().CreateTx(ctx, tx, user); err != nil {
			// a unique violation means a concurrent registration won the
			// race past the friendly lookup above
			if goerrors.Is(err, ErrDuplicateIdentity) || isUniqueViolation(err) {
				return ErrDuplicateIdentity
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		h.recordOutcome(ctx, ActivityEventRegistrationFailure, "", map[string]any{
			"identifier": event.Email,
			"error":      err.Error(),
		})

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	token, err := h.Tokens.Generate(IdentityFromUser(user))
	if err != nil {
		h.recordOutcome(ctx, ActivityEventRegistrationFailure, user.ID.String(), map[string]any{
			"identifier": event.Email,
			"error":      err.Error(),
		})
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue registration token")
	}

	h.recordOutcome(ctx, ActivityEventRegistrationSuccess, user.ID.String(), map[string]any{
		"identifier": event.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{
			User:  user,
			Token: token,
		})
	}

	return nil
}

// recordOutcome reports the registration result to the activity sink. Sink
// failures never fail the registration itself.
func (h *RegisterUserHandler) recordOutcome(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}

	_ = normalizeActivitySink(h.Activity).Record(ctx, ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	})
}

// isUniqueViolation matches the driver texts for a unique-index rejection
// (sqlite and postgres) so the store-level race closure surfaces as the
// duplicate-identity failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func defaultRole(role string) UserRole {
	if r, ok := ParseRole(role); ok {
		return r
	}
	return RoleUser
}

// getUsername defaults the username to the email. The local part would read
// nicer but usernames are unique and emails are the only identifier we can
// trust not to collide.
func getUsername(username, email string) string {
	if username != "" {
		return strings.TrimSpace(username)
	}
	return email
}
