package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/utils"
)

const (
	// SessionKey is the key used to store the session view in Fiber context
	SessionKey = "session"
)

// SessionReader resolves a raw token into a session view
type SessionReader interface {
	CurrentSession(ctx context.Context, raw string) *SessionView
}

// TokenFromRequest returns the session token from the cookie, falling back to a Bearer header
func TokenFromRequest(c *fiber.Ctx, cookieName string) string {
	if v := c.Cookies(cookieName); v != "" {
		return v
	}

	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionMiddleware resolves the session for every request and stores it
// under SessionKey. Requests without a usable session pass through with nil.
func SessionMiddleware(reader SessionReader, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := TokenFromRequest(c, cookieName); raw != "" {
			if view := reader.CurrentSession(c.UserContext(), raw); view != nil {
				c.Locals(SessionKey, view)
			}
		}
		return c.Next()
	}
}

// RequireSession rejects requests without an active session
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetSession(c) == nil {
			return utils.ErrorResponse(c, ErrNotAuthenticated.Error(), fiber.StatusUnauthorized)
		}
		return c.Next()
	}
}

// RequireRole rejects sessions whose role differs from role
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := GetSession(c)
		if view == nil {
			return utils.ErrorResponse(c, ErrNotAuthenticated.Error(), fiber.StatusUnauthorized)
		}
		if view.Role != role {
			return utils.ErrorResponse(c, ErrForbidden.Error(), fiber.StatusForbidden)
		}
		return c.Next()
	}
}

// GetSession extracts the session view from Fiber context
func GetSession(c *fiber.Ctx) *SessionView {
	view, ok := c.Locals(SessionKey).(*SessionView)
	if !ok {
		return nil
	}
	return view
}
