package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/Anvoria/alumnet/internal/utils"
)

// CookieSettings controls the session cookie
type CookieSettings struct {
	Name   string
	Secure bool
}

type Handler struct {
	authService AuthService
	cookie      CookieSettings
	loginPath   string
}

// NewHandler creates a new Handler
func NewHandler(s AuthService, cookie CookieSettings, loginPath string) *Handler {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Handler{authService: s, cookie: cookie, loginPath: loginPath}
}

type registerRequest struct {
	Name          string `json:"name"`
	PreferredName string `json:"preferred_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, ErrInvalidBody.Error(), fiber.StatusBadRequest)
	}

	res, err := h.authService.Register(c.UserContext(), user.RegisterRequest{
		Name:          req.Name,
		PreferredName: req.PreferredName,
		Email:         req.Email,
		Password:      req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailExists):
			return utils.ErrorResponse(c, err.Error(), fiber.StatusConflict)
		case errors.Is(err, user.ErrNameRequired),
			errors.Is(err, user.ErrEmailRequired),
			errors.Is(err, user.ErrPasswordTooShort):
			return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest)
		default:
			return utils.ErrorResponse(c, utils.ErrInternalServer)
		}
	}

	return utils.SuccessResponse(c, fiber.Map{
		"user": res,
	}, "User registered successfully, awaiting approval", fiber.StatusCreated)
}

func (h *Handler) SignIn(c *fiber.Ctx) error {
	var req SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, ErrInvalidBody.Error(), fiber.StatusBadRequest)
	}
	if req.UserAgentLabel == "" {
		req.UserAgentLabel = c.Get(fiber.HeaderUserAgent)
	}

	res, err := h.authService.SignIn(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return utils.ErrorResponse(c, ErrInvalidCredentials.Error(), fiber.StatusUnauthorized)
		}
		return utils.ErrorResponse(c, utils.ErrInternalServer)
	}

	h.setSessionCookie(c, res)

	return utils.SuccessResponse(c, res, "Login successful")
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	raw := TokenFromRequest(c, h.cookie.Name)
	if raw == "" {
		return utils.ErrorResponse(c, ErrNotAuthenticated.Error(), fiber.StatusUnauthorized)
	}

	res, err := h.authService.RefreshSession(c.UserContext(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionExpired),
			errors.Is(err, ErrTokenMaxAge),
			errors.Is(err, ErrSessionRevoked):
			h.clearSessionCookie(c)
			return utils.ErrorResponse(c, ErrSessionExpired.Error(), fiber.StatusUnauthorized)
		case errors.Is(err, ErrInvalidToken):
			h.clearSessionCookie(c)
			return utils.ErrorResponse(c, ErrInvalidToken.Error(), fiber.StatusUnauthorized)
		default:
			return utils.ErrorResponse(c, utils.ErrInternalServer)
		}
	}

	h.setSessionCookie(c, res)

	return utils.SuccessResponse(c, res, "Session refreshed")
}

// Session returns the current session view, or null when signed out
func (h *Handler) Session(c *fiber.Ctx) error {
	view := GetSession(c)
	if view == nil {
		view = h.authService.CurrentSession(c.UserContext(), TokenFromRequest(c, h.cookie.Name))
	}
	return utils.SuccessResponse(c, view, "")
}

func (h *Handler) SignOut(c *fiber.Ctx) error {
	if err := h.authService.SignOut(c.UserContext(), TokenFromRequest(c, h.cookie.Name)); err != nil {
		return utils.ErrorResponse(c, utils.ErrInternalServer)
	}

	h.clearSessionCookie(c)

	redirect := h.loginPath
	if c.Query("reason") == "timeout" {
		redirect += "?timeout=true"
	}

	return utils.SuccessResponse(c, fiber.Map{
		"redirect": redirect,
	}, "Signed out")
}

func (h *Handler) setSessionCookie(c *fiber.Ctx, res *SessionResult) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    res.Token,
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		Path:     "/",
		SameSite: "Lax",
		Expires:  res.TokenExpiresAt,
	})
}

func (h *Handler) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		Path:     "/",
		SameSite: "Lax",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// JWKSHandler serves the public signing keys
func JWKSHandler(ks *KeyStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(ks.JWKS())
	}
}
