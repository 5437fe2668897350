package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/youtubelmm/api/internal/auth"
)

// AuthHandler handles ForwardAuth verification for an API gateway.
type AuthHandler struct {
	verifier auth.TokenVerifier
}

func NewAuthHandler(verifier auth.TokenVerifier) *AuthHandler {
	return &AuthHandler{verifier: verifier}
}

// Verify handles GET /auth/verify. It answers 200 with X-Owner-Id for a valid
// bearer token and 401 otherwise.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	if h.verifier == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	parts := strings.SplitN(c.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := h.verifier.Validate(parts[1])
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	c.Set("X-Owner-Id", strconv.FormatInt(claims.OwnerID, 10))
	return c.SendStatus(fiber.StatusOK)
}
