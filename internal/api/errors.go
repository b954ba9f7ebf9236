package api

import (
	"github.com/matthiasponsi/token-trackr/internal/models"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto JSON error responses. AppError
// carries its own status code and optional field name; anything else is
// an opaque 500.
func respondError(c *fiber.Ctx, err error) error {
	if appErr, ok := models.AsAppError(err); ok {
		body := fiber.Map{
			"error": appErr.Message,
			"type":  string(appErr.Type),
		}
		if appErr.Field != "" {
			body["field"] = appErr.Field
		}
		return c.Status(appErr.GetStatusCode()).JSON(body)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}
