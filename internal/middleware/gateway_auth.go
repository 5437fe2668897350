package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/youtubelmm/api/pkg/response"
)

// GatewayAuthMiddleware reads the owner identity from the X-Owner-Id header
// set by a forward-auth proxy in front of the API.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-Owner-Id")
		if raw == "" {
			return response.Unauthorized(c, "Missing owner identity header")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return response.Unauthorized(c, "Invalid owner identity header")
		}

		c.Locals(localOwnerID, id)
		return c.Next()
	}
}
