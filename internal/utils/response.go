package utils

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessResponse sends a success JSON response
func SuccessResponse(c *fiber.Ctx, data any, message string, code ...int) error {
	statusCode := fiber.StatusOK
	if len(code) > 0 {
		statusCode = code[0]
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"message": message,
	})
}

// ErrorResponse sends an error JSON response with a failure flag.
// err may be a string or an *APIError; an *APIError is written with its code
// and its own status unless an explicit status is given. The shared APIError
// value is never mutated.
func ErrorResponse(c *fiber.Ctx, err any, code ...int) error {
	statusCode := fiber.StatusInternalServerError
	var body any

	switch e := err.(type) {
	case *APIError:
		statusCode = e.Status
		body = *e
	case error:
		body = e.Error()
	case string:
		body = e
	default:
		body = ErrInternalServer.Message
	}

	if len(code) > 0 {
		statusCode = code[0]
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"success": false,
		"error":   body,
	})
}
