package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	authgate "github.com/corvid-labs/authgate"
	"github.com/corvid-labs/authgate/cmd/server/config"
	"github.com/gofiber/fiber/v2"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *gconfig.Container[*config.BaseConfig]
	bunDB  *bun.DB
	auth   authgate.Authenticator
	auther *authgate.RouteAuthenticator
	repo   authgate.RepositoryManager
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("authgate"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if app.Config().Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
		fmt.Println("============")
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPAuth(ctx, app); err != nil {
		panic(err)
	}

	ProtectedRoutes(app)

	app.srv.Serve(app.Config().GetServer().GetAddr())

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.Config().GetPersistence().GetDSN())
	if err != nil {
		log.Fatal(err)
		return err
	}

	persistence.RegisterModel((*authgate.User)(nil))

	cfg := app.Config().GetPersistence()
	dialect := sqlitedialect.New()
	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		log.Fatal(err)
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(authgate.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = authgate.NewRepositoryManager(client.DB())

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           "authgate",
			UnescapePath:      true,
			EnablePrintRoutes: app.Config().Debug,
			StrictRouting:     false,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv

	return nil
}

// userStoreAdapter narrows the repository to the lookup the credential
// verifier needs.
type userStoreAdapter struct {
	users authgate.Users
}

func (a userStoreAdapter) GetByIdentifier(ctx context.Context, identifier string) (*authgate.User, error) {
	return a.users.GetByIdentifier(ctx, identifier)
}

func WithHTTPAuth(ctx context.Context, app *App) error {
	cfg := app.Config().GetAuth()

	if err := app.repo.Validate(); err != nil {
		return err
	}

	userProvider := authgate.NewUserProvider(userStoreAdapter{users: app.repo.Users()})
	userProvider.WithLogger(app.GetLogger("auth:prv"))

	activitySink := authgate.ActivitySinkFunc(
		func(ctx context.Context, event authgate.ActivityEvent) error {
			app.GetLogger("auth:activity").Info("auth event",
				"event_type", string(event.EventType),
				"actor_id", event.Actor.ID,
			)
			return nil
		},
	)

	authenticator := authgate.NewAuthenticator(userProvider, cfg)
	authenticator.WithLogger(app.GetLogger("auth:authn"))
	authenticator.WithActivitySink(activitySink)

	app.auth = authenticator

	httpAuth, err := authgate.NewHTTPAuthenticator(authenticator, cfg)
	if err != nil {
		return err
	}

	httpAuth.WithLogger(app.GetLogger("auth:http"))

	app.auther = httpAuth

	authgate.RegisterAuthRoutes(app.srv.Router().Group("/"),
		authgate.WithControllerAuthenticator(authenticator),
		authgate.WithControllerRepo(app.repo),
		authgate.WithControllerLogger(app.GetLogger("auth:ctrl")),
		authgate.WithControllerActivitySink(activitySink),
		authgate.WithControllerDebug(app.Config().Debug),
	)

	return nil
}

func ProtectedRoutes(app *App) {
	p := app.srv.Router()
	cfg := app.Config().GetAuth()

	protected := app.auther.ProtectedRoute(cfg, app.auther.MakeAuthErrorHandler(false))
	adminOnly := app.auther.AuthorityRoute(cfg, authgate.AuthorityAdmin, app.auther.MakeAuthErrorHandler(false))

	p.Get("/me", ProfileShow(app), protected)
	p.Get("/admin/users", AdminUsersIndex(app), adminOnly)
}

// ProfileShow returns the authenticated caller's record.
func ProfileShow(app *App) func(c router.Context) error {
	return func(c router.Context) error {
		identity := authgate.IdentityFromContext(c.Context())
		if identity == nil {
			return c.JSON(router.StatusUnauthorized, map[string]string{
				"error": "missing identity",
			})
		}

		user, err := app.repo.Users().GetByIdentifier(c.Context(), identity.Email())
		if err != nil {
			app.GetLogger("profile").Error("user lookup error", "error", err)
			return c.JSON(router.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}

		return c.JSON(router.StatusOK, map[string]any{
			"id":         user.ID,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"username":   user.Username,
			"email":      user.Email,
			"role":       user.Role,
		})
	}
}

// AdminUsersIndex lists registered users, admins only.
func AdminUsersIndex(app *App) func(c router.Context) error {
	return func(c router.Context) error {
		users, err := app.repo.Users().Raw(c.Context(),
			"SELECT * FROM users WHERE deleted_at IS NULL ORDER BY created_at DESC",
		)
		if err != nil {
			app.GetLogger("admin").Error("user list error", "error", err)
			return c.JSON(router.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}

		out := make([]map[string]any, 0, len(users))
		for _, user := range users {
			out = append(out, map[string]any{
				"id":       user.ID,
				"username": user.Username,
				"email":    user.Email,
				"role":     user.Role,
			})
		}

		return c.JSON(router.StatusOK, map[string]any{"items": out})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
