package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/youtubelmm/api/internal/export"
	"github.com/youtubelmm/api/internal/middleware"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/store"
	"github.com/youtubelmm/api/pkg/response"
)

// ProgressReader returns the last recorded progress of a task.
type ProgressReader interface {
	Latest(ctx context.Context, taskID int64) (*model.ProgressSnapshot, error)
}

// TaskProgressResponse is the body of GET /api/tasks/:id/progress.
type TaskProgressResponse struct {
	TaskID   int64                   `json:"taskId"`
	Status   model.TaskStatus        `json:"status"`
	Progress *model.ProgressSnapshot `json:"progress"`
}

// ArtifactsResponse is the body of GET /api/tasks/:id/artifacts.
type ArtifactsResponse struct {
	TaskID    int64              `json:"taskId"`
	Artifacts []service.Artifact `json:"artifacts"`
}

type TaskHandler struct {
	tasks     *service.TaskService
	progress  ProgressReader
	artifacts *service.ArtifactService
	validator *validator.Validate
}

func NewTaskHandler(tasks *service.TaskService, progress ProgressReader, artifacts *service.ArtifactService, v *validator.Validate) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		progress:  progress,
		artifacts: artifacts,
		validator: v,
	}
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	var req model.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.tasks.Submit(c.UserContext(), middleware.GetOwnerID(c), req.URL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			return response.InvalidURL(c)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/tasks/:id
func (h *TaskHandler) Status(c *fiber.Ctx) error {
	task, ok, err := h.task(c)
	if !ok {
		return err
	}
	return response.OK(c, model.NewTaskStatusResponse(task))
}

// Progress handles GET /api/tasks/:id/progress
func (h *TaskHandler) Progress(c *fiber.Ctx) error {
	task, ok, err := h.task(c)
	if !ok {
		return err
	}

	resp := TaskProgressResponse{TaskID: task.ID, Status: task.Status}
	if h.progress != nil {
		snap, err := h.progress.Latest(c.UserContext(), task.ID)
		if err != nil {
			return response.ServiceError(c, err.Error())
		}
		resp.Progress = snap
	}
	return response.OK(c, resp)
}

// Result handles GET /api/tasks/:id/result
func (h *TaskHandler) Result(c *fiber.Ctx) error {
	result, ok, err := h.result(c)
	if !ok {
		return err
	}
	return response.OK(c, result)
}

// File handles GET /api/tasks/:id/files/:kind
func (h *TaskHandler) File(c *fiber.Ctx) error {
	kind, ok := export.ParseKind(c.Params("kind"))
	if !ok {
		return response.ValidationError(c, "Unknown file kind", fiber.Map{
			"kind": "one of summary, outline, transcript, subtitles",
		})
	}

	result, found, err := h.result(c)
	if !found {
		return err
	}

	doc, ok := export.Document(result.TaskID, result, kind)
	if !ok {
		return response.NotFound(c, "File not available")
	}
	return response.Attachment(c, doc.FileName, doc.ContentType, doc.Content)
}

// Artifacts handles GET /api/tasks/:id/artifacts
func (h *TaskHandler) Artifacts(c *fiber.Ctx) error {
	if h.artifacts == nil || !h.artifacts.Enabled() {
		return response.StorageDisabled(c)
	}

	result, ok, err := h.result(c)
	if !ok {
		return err
	}

	links, err := h.artifacts.Links(c.UserContext(), result.TaskID, result)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, ArtifactsResponse{TaskID: result.TaskID, Artifacts: links})
}

// task loads the task named by :id for the caller. When ok is false the error
// response has been written and err is what the handler should return.
func (h *TaskHandler) task(c *fiber.Ctx) (task *model.Task, ok bool, err error) {
	id, perr := c.ParamsInt("id")
	if perr != nil || id <= 0 {
		return nil, false, response.ValidationError(c, "Task ID must be a positive integer", nil)
	}

	task, err = h.tasks.Get(c.UserContext(), middleware.GetOwnerID(c), int64(id))
	if err != nil {
		return nil, false, taskError(c, err)
	}
	return task, true, nil
}

func (h *TaskHandler) result(c *fiber.Ctx) (result *model.Result, ok bool, err error) {
	id, perr := c.ParamsInt("id")
	if perr != nil || id <= 0 {
		return nil, false, response.ValidationError(c, "Task ID must be a positive integer", nil)
	}

	result, err = h.tasks.Result(c.UserContext(), middleware.GetOwnerID(c), int64(id))
	if err != nil {
		return nil, false, taskError(c, err)
	}
	return result, true, nil
}

func taskError(c *fiber.Ctx, err error) error {
	var notReady *service.NotReadyError
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return response.NotFound(c, "Task not found")
	case errors.Is(err, service.ErrNotOwner):
		return response.Forbidden(c, "This task does not belong to you")
	case errors.As(err, &notReady):
		return response.TaskNotReady(c, string(notReady.Status))
	case errors.Is(err, service.ErrResultMissing):
		return response.ResultMissing(c)
	}
	return response.ServiceError(c, err.Error())
}
