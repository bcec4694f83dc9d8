package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-hr-auth"
	"github.com/goliatone/go-hr-auth/activitymap"
	"github.com/goliatone/go-hr-auth/middleware/jwtware"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication API",
		Long: `Run the authentication API.

Endpoints:
  POST /auth/login     exchange credentials for an access token and refresh cookie
  POST /auth/refresh   rotate the refresh cookie for a new access token
  POST /auth/logout    revoke the refresh cookie
  GET  /auth/me        profile of the bearer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := auth.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}
			if opts.debug {
				cfg.Debug = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&address, "addr", "", "listen address, overrides the config")

	return cmd
}

func serve(ctx context.Context, cfg *auth.BaseConfig) error {
	lgr := newLogger(cfg.Debug)
	logger := lgr.GetLogger("server")

	app, closeDB, err := newServerApp(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer closeDB()

	if cfg.RefreshCookieSecure && !strings.HasPrefix(cfg.Address, "https") {
		logger.Warn("refresh cookie is marked Secure, clients on plain http will not send it back")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Address)
		errCh <- app.Listen(cfg.Address)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	case err := <-errCh:
		return err
	}
}

// newServerApp opens the database and mounts the auth and api routes
func newServerApp(ctx context.Context, cfg *auth.BaseConfig, lgr *glog.BaseLogger) (*fiber.App, func(), error) {
	logger := lgr.GetLogger("server")

	dbClient, err := auth.OpenDB(ctx, cfg.GetPersistence())
	if err != nil {
		return nil, nil, err
	}
	dbClient.SetLogger(lgr.GetLogger("persistence"))

	db := dbClient.DB()
	closeDB := func() { _ = db.Close() }

	if err := auth.Migrate(ctx, dbClient); err != nil {
		closeDB()
		return nil, nil, err
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		closeDB()
		return nil, nil, err
	}

	auth.MaxLoginAttempts = cfg.MaxLoginAttempts
	auth.CoolDownPeriod = cfg.CoolDownPeriod

	provider := auth.NewUserProvider(repo.Users()).WithLogger(logger)

	auther := auth.NewAuthenticator(provider, repo.RefreshTokens(), cfg).
		WithLogger(logger).
		WithActivitySink(activityLogger(lgr.GetLogger("activity"), cfg.Debug))

	app := fiber.New(fiber.Config{
		AppName:               "hrauth",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	controller := auth.RegisterAuthRoutes(app,
		auth.WithAuther(auther),
		auth.WithControllerConfig(cfg),
		auth.WithControllerLogger(logger),
		auth.WithDebug(cfg.Debug),
		auth.WithValidationListeners(func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
			logger.Debug("authorized request", "method", c.Method(), "path", c.Path(), "user_id", claims.UserID(), "role", claims.Role())
			return nil
		}),
	)

	api := app.Group("/api", controller.ProtectedRoute())
	api.Get("/claims", claimsHandler(cfg))
	api.Get("/collaborators/permissions",
		auth.RequirePermission(cfg.GetContextKey(), auth.PermissionViewCollaborators),
		claimsHandler(cfg),
	)

	return app, closeDB, nil
}

// claimsHandler echoes what the access token grants
func claimsHandler(cfg *auth.BaseConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := auth.GetFiberClaims(c, cfg.GetContextKey())
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.JSON(fiber.Map{
			"data": fiber.Map{
				"subject":     claims.Subject(),
				"user_id":     claims.UserID(),
				"role":        claims.Role(),
				"permissions": claims.Permissions(),
			},
		})
	}
}

func activityLogger(logger glog.Logger, debug bool) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := activitymap.Normalize(event)
		if debug {
			logger.Debug("activity", "record", print.MaybePrettyJSON(record))
			return nil
		}
		logger.Info("activity", "verb", record.Verb, "actor_id", record.ActorID)
		return nil
	})
}
