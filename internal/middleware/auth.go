package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/youtubelmm/api/internal/auth"
	"github.com/youtubelmm/api/pkg/response"
)

const localOwnerID = "ownerId"

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate validates the bearer token and stores the owner id in locals.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.verifier == nil {
			return response.Unauthorized(c, "Authentication not configured")
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		claims, err := m.verifier.Validate(parts[1])
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals(localOwnerID, claims.OwnerID)
		return c.Next()
	}
}

// GetOwnerID extracts the authenticated owner id, or 0.
func GetOwnerID(c *fiber.Ctx) int64 {
	if id, ok := c.Locals(localOwnerID).(int64); ok {
		return id
	}
	return 0
}
