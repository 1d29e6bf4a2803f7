package account

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/domain/auth"
	"github.com/Anvoria/alumnet/internal/domain/device"
	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/Anvoria/alumnet/internal/utils"
)

// Handler serves the self-service account endpoints and the admin approval flow.
// Every route expects auth.SessionMiddleware to have run first.
type Handler struct {
	users   user.Service
	devices device.Service
}

// NewHandler creates a Handler backed by the identity store and device registry
func NewHandler(users user.Service, devices device.Service) *Handler {
	return &Handler{users: users, devices: devices}
}

// ListDevices returns the remembered devices of the signed-in user
func (h *Handler) ListDevices(c *fiber.Ctx) error {
	view := auth.GetSession(c)
	if view == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	devices, err := h.devices.ListDevices(c.UserContext(), view.ID)
	if err != nil {
		slog.Error("Failed to list devices", "user_id", view.ID, "error", err)
		return utils.ErrorResponse(c, utils.ErrInternalServer)
	}

	out := make([]device.DeviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, devices[i].ToResponse())
	}

	return utils.SuccessResponse(c, fiber.Map{
		"devices": out,
	}, "Devices retrieved successfully")
}

// ForgetDevice removes a remembered device of the signed-in user
func (h *Handler) ForgetDevice(c *fiber.Ctx) error {
	view := auth.GetSession(c)
	if view == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	deviceID := c.Params("device_id")
	if deviceID == "" {
		return utils.ErrorResponse(c, utils.NewAPIError("VALIDATION_ERROR", "device_id is required", fiber.StatusBadRequest))
	}

	if err := h.devices.ForgetDevice(c.UserContext(), view.ID, deviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return utils.ErrorResponse(c, utils.NewAPIError("RESOURCE_NOT_FOUND", err.Error(), fiber.StatusNotFound))
		}
		slog.Error("Failed to forget device", "user_id", view.ID, "device_id", deviceID, "error", err)
		return utils.ErrorResponse(c, utils.ErrInternalServer)
	}

	return utils.SuccessResponse(c, nil, "Device forgotten")
}

type profileRequest struct {
	Name          *string `json:"name"`
	PreferredName *string `json:"preferred_name"`
}

// UpdateProfile changes the display names of the signed-in user.
// The session claims pick the new names up on the next refresh.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	view := auth.GetSession(c)
	if view == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.NewAPIError("INVALID_BODY", "Invalid request body", fiber.StatusBadRequest))
	}

	u, err := h.users.UpdateProfile(c.UserContext(), view.ID, user.ProfileUpdate{
		Name:          req.Name,
		PreferredName: req.PreferredName,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNameRequired):
			return utils.ErrorResponse(c, utils.NewAPIError("VALIDATION_ERROR", err.Error(), fiber.StatusBadRequest))
		case errors.Is(err, user.ErrUserNotFound):
			return utils.ErrorResponse(c, utils.ErrNotFound)
		default:
			slog.Error("Failed to update profile", "user_id", view.ID, "error", err)
			return utils.ErrorResponse(c, utils.ErrInternalServer)
		}
	}

	return utils.SuccessResponse(c, fiber.Map{
		"user": u.ToResponse(),
	}, "Profile updated")
}

type statusRequest struct {
	Status user.Status `json:"status"`
}

// Approve moves a pending identity into the approved state
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.setStatus(c, user.StatusApproved)
}

// SetStatus applies an arbitrary administrative status from the request body
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.NewAPIError("INVALID_BODY", "Invalid request body", fiber.StatusBadRequest))
	}
	return h.setStatus(c, req.Status)
}

func (h *Handler) setStatus(c *fiber.Ctx, status user.Status) error {
	id := c.Params("id")
	if id == "" {
		return utils.ErrorResponse(c, utils.NewAPIError("VALIDATION_ERROR", "ID is required", fiber.StatusBadRequest))
	}

	u, err := h.users.SetStatus(c.UserContext(), id, status)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidStatus):
			return utils.ErrorResponse(c, utils.NewAPIError("VALIDATION_ERROR", err.Error(), fiber.StatusBadRequest))
		case errors.Is(err, user.ErrUserNotFound):
			return utils.ErrorResponse(c, utils.NewAPIError("RESOURCE_NOT_FOUND", err.Error(), fiber.StatusNotFound))
		default:
			slog.Error("Failed to change user status", "user_id", id, "status", status, "error", err)
			return utils.ErrorResponse(c, utils.ErrInternalServer)
		}
	}

	if admin := auth.GetSession(c); admin != nil {
		slog.Info("User status changed", "user_id", id, "status", u.Status, "by", admin.ID)
	}

	return utils.SuccessResponse(c, fiber.Map{
		"user": u.ToResponse(),
	}, "User status updated")
}

// RegisterRoutes mounts the account endpoints on an already session-aware router.
// Guards are attached per route so sibling routes on r stay unaffected.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	signedIn := auth.RequireSession()
	r.Get("/devices", signedIn, h.ListDevices)
	r.Delete("/devices/:device_id", signedIn, h.ForgetDevice)
	r.Patch("/profile", signedIn, h.UpdateProfile)

	admin := auth.RequireRole(user.RoleAdmin)
	r.Post("/admin/users/:id/approve", admin, h.Approve)
	r.Put("/admin/users/:id/status", admin, h.SetStatus)
}
