package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler serves GET /health.
type HealthHandler struct {
	checks   map[string]Pinger
	features map[string]bool
}

// NewHealthHandler creates the handler. checks are probed on every request;
// features are static configuration flags.
func NewHealthHandler(checks map[string]Pinger, features map[string]bool) *HealthHandler {
	return &HealthHandler{checks: checks, features: features}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := fiber.Map{}
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"dependencies": deps,
		"services":     h.features,
	})
}
