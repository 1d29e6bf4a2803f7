package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Anvoria/alumnet/internal/cache"
	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/database"
	"github.com/Anvoria/alumnet/internal/domain/auth"
	"github.com/Anvoria/alumnet/internal/domain/device"
	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/Anvoria/alumnet/internal/migrations"
	"github.com/Anvoria/alumnet/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// NewApp creates the Fiber app with the shared error handler and the
// security, rate limiting and CORS middleware.
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var apiErr *utils.APIError
			if errors.As(err, &apiErr) {
				return utils.ErrorResponse(c, apiErr)
			}

			var e *fiber.Error
			if errors.As(err, &e) {
				return utils.ErrorResponse(c, utils.NewAPIError("HTTP_ERROR", e.Message, e.Code))
			}

			slog.Error("Unhandled request error", "path", c.Path(), "error", err)
			return utils.ErrorResponse(c, utils.ErrInternalServer)
		},
	})

	app.Use(helmet.New())

	if cfg.Server.RateLimit.Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.Server.RateLimit.Max,
			Expiration: time.Duration(cfg.Server.RateLimit.Expiration) * time.Second,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return utils.ErrorResponse(c, utils.ErrTooManyRequests)
			},
		}))
	}

	// credentials are only allowed with an explicit origin list
	origins := strings.Join(cfg.Server.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: origins != "" && origins != "*",
		ExposeHeaders:    "Content-Length",
		MaxAge:           3600,
	}))

	return app
}

// Start connects every backing store, registers routes and serves until
// SIGINT or SIGTERM, then shuts down gracefully.
func Start(cfg *config.Config, env *config.Environment) error {
	if err := database.ConnectDB(cfg); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return err
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}()
	slog.Info("Database connected successfully")

	if err := migrations.RunMigrations(cfg); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return err
	}
	slog.Info("Migrations completed successfully")

	deps := Dependencies{
		Users: user.NewService(user.NewRepository(database.DB)),
	}

	deviceRepo := device.NewRepository(database.DB)
	if cfg.Redis.Enabled() {
		if err := cache.ConnectRedis(&cfg.Redis); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			return err
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				slog.Warn("Failed to close Redis", "error", err)
			}
		}()
		deps.Devices = device.NewServiceWithCache(deviceRepo, cache.NewDeviceCache(cache.RedisClient))
		deps.Revocations = cache.NewSessionRevocationCache(cache.RedisClient)
	} else {
		slog.Warn("Redis not configured, sign-out will not revoke outstanding tokens")
		deps.Devices = device.NewService(deviceRepo)
	}

	keyStore, err := loadKeyStore(cfg, env)
	if err != nil {
		slog.Error("Failed to load signing keys", "error", err)
		return err
	}
	deps.KeyStore = keyStore

	app := NewApp(cfg)
	if err := SetupRoutes(app, cfg, deps); err != nil {
		slog.Error("Failed to setup routes", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	addr := cfg.Server.Address()
	go func() {
		slog.Info("Server starting",
			"address", addr,
			"app", cfg.App.Name,
			"version", cfg.App.Version,
			"environment", env.Environment.String(),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Failed to start server", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// loadKeyStore prefers PEM files under auth.keys_path and falls back to a
// single key from PRIVATE_KEY, generated on the fly outside production.
func loadKeyStore(cfg *config.Config, env *config.Environment) (*auth.KeyStore, error) {
	if cfg.Auth.KeysPath != "" {
		ks, err := auth.LoadKeys(cfg.Auth.KeysPath, cfg.Auth.ActiveKID)
		if err != nil {
			return nil, fmt.Errorf("failed to load keys: %w", err)
		}
		return ks, nil
	}

	priv, err := config.LoadRSAPrivateKey(env.PrivateKey, env.Environment)
	if err != nil {
		return nil, err
	}
	if env.PrivateKey == "" {
		slog.Warn("Using an ephemeral signing key, sessions will not survive a restart")
	}

	kid := cfg.Auth.ActiveKID
	if kid == "" {
		kid = "default"
	}
	return auth.NewKeyStoreFromRSA(priv, kid)
}
