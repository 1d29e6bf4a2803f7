package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/domain/account"
	"github.com/Anvoria/alumnet/internal/domain/auth"
	"github.com/Anvoria/alumnet/internal/domain/device"
	"github.com/Anvoria/alumnet/internal/domain/gate"
	"github.com/Anvoria/alumnet/internal/domain/user"
)

// Dependencies are the stores and keys the routes are built on.
// Revocations may be nil, in which case sign-out only clears the cookie.
type Dependencies struct {
	Users       user.Service
	Devices     device.Service
	KeyStore    *auth.KeyStore
	Revocations auth.RevocationStore
}

// SetupRoutes registers the session API under /v1, the JWKS document and the
// gated page routes. Every request first has its session resolved, then passes
// the access gate.
func SetupRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) error {
	if deps.Users == nil || deps.KeyStore == nil {
		return errors.New("server: users and key store are required")
	}

	issuerName := cfg.App.Name
	if cfg.Server.Domain != "" {
		issuerName = cfg.Server.Domain
	}

	authService := auth.NewService(deps.Users, deps.Devices, deps.KeyStore, auth.NewIssuer(issuerName, &cfg.Session), deps.Revocations)
	routes := cfg.Routes.WithDefaults()
	cookieName := cfg.Auth.Cookie()

	app.Use(auth.SessionMiddleware(authService, cookieName))
	app.Use(gate.Middleware(gate.NewRules(routes)))

	app.Get("/.well-known/jwks.json", auth.JWKSHandler(deps.KeyStore))

	api := app.Group("/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	authHandler := auth.NewHandler(authService, auth.CookieSettings{
		Name:   cookieName,
		Secure: cfg.Auth.SecureCookie,
	}, routes.LoginPath)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/signin", authHandler.SignIn)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/session", authHandler.Session)
	authGroup.Post("/signout", authHandler.SignOut)

	if deps.Devices != nil {
		account.NewHandler(deps.Users, deps.Devices).RegisterRoutes(api)
	}

	registerPages(app, routes)

	return nil
}

// registerPages mounts JSON stand-ins for the pages the gate guards, so the
// redirects have a target and the login page can report a timed-out session.
func registerPages(app *fiber.App, routes config.RoutesConfig) {
	page := func(name string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"page":     name,
				"session":  auth.GetSession(c),
				"timeout":  c.Query("timeout") == "true",
				"callback": c.Query("callbackUrl"),
			})
		}
	}

	app.Get(routes.LoginPath, page("login"))
	app.Get(routes.PendingPath, page("pending-status"))
	app.Get(routes.HomePath, page("dashboard"))
	app.Get(routes.HomePath+"/*", page("dashboard"))
	for _, p := range routes.AuthEntry {
		if p != routes.LoginPath {
			app.Get(p, page(strings.TrimPrefix(p, "/")))
		}
	}
}
