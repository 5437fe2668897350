package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	ws "github.com/youtubelmm/api/internal/websocket"
)

const localTaskID = "taskId"

// Routes bundles everything the API mounts.
type Routes struct {
	Auth       fiber.Handler
	TaskLimit  fiber.Handler
	Tasks      *TaskHandler
	Health     *HealthHandler
	AuthVerify *AuthHandler
	Hub        *ws.Hub
}

// Register mounts the routes on app.
func (r Routes) Register(app *fiber.App) {
	app.Get("/health", r.Health.Health)
	if r.AuthVerify != nil {
		app.Get("/auth/verify", r.AuthVerify.Verify)
	}

	api := app.Group("/api", r.Auth)
	tasks := api.Group("/tasks")
	if r.TaskLimit != nil {
		tasks.Post("/", r.TaskLimit, r.Tasks.Create)
	} else {
		tasks.Post("/", r.Tasks.Create)
	}
	tasks.Get("/:id", r.Tasks.Status)
	tasks.Get("/:id/progress", r.Tasks.Progress)
	tasks.Get("/:id/result", r.Tasks.Result)
	tasks.Get("/:id/files/:kind", r.Tasks.File)
	tasks.Get("/:id/artifacts", r.Tasks.Artifacts)

	if r.Hub != nil {
		app.Get("/ws/tasks/:id", r.Auth, r.Tasks.WatchGuard, websocket.New(func(c *websocket.Conn) {
			taskID, _ := c.Locals(localTaskID).(int64)
			r.Hub.HandleConnection(c, taskID)
		}))
	}
}

// WatchGuard admits a websocket upgrade for a task the caller owns.
func (h *TaskHandler) WatchGuard(c *fiber.Ctx) error {
	task, ok, err := h.task(c)
	if !ok {
		return err
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(localTaskID, task.ID)
	return c.Next()
}
