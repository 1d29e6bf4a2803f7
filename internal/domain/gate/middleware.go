package gate

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/domain/auth"
)

// Middleware enforces Rules on every request. It expects
// auth.SessionMiddleware to have run first.
func Middleware(rules *Rules) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := rules.Decide(c.Path(), auth.GetSession(c))
		if decision.Action == Redirect {
			slog.Debug("Gate redirect", "path", c.Path(), "location", decision.Location)
			return c.Redirect(decision.Location, fiber.StatusFound)
		}
		return c.Next()
	}
}
