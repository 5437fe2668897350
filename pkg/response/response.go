// Package response writes the JSON envelopes of the task API.
package response

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidURL      = "INVALID_URL"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeTaskNotReady    = "TASK_NOT_READY"
	CodeResultMissing   = "RESULT_MISSING"
	CodeStorageDisabled = "STORAGE_DISABLED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details any) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func ValidationError(c *fiber.Ctx, message string, details any) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

// InvalidURL rejects a submission that is not a YouTube link.
func InvalidURL(c *fiber.Ctx) error {
	return Error(c, fiber.StatusBadRequest, CodeInvalidURL, "Please send a valid YouTube URL.", nil)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

// TaskNotReady answers a result request for a task that is still running.
// The client should poll again later.
func TaskNotReady(c *fiber.Ctx, status string) error {
	return Error(c, fiber.StatusConflict, CodeTaskNotReady, "Task not completed yet", fiber.Map{"status": status})
}

// ResultMissing reports a completed task without a stored result.
func ResultMissing(c *fiber.Ctx) error {
	return Error(c, fiber.StatusNotFound, CodeResultMissing, "Task completed but result missing", nil)
}

func StorageDisabled(c *fiber.Ctx) error {
	return Error(c, fiber.StatusNotFound, CodeStorageDisabled, "Artifact storage is not configured", nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}

// Accepted answers a submission that was queued, or a duplicate of one.
func Accepted(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

// Attachment sends body as a downloadable file.
func Attachment(c *fiber.Ctx, fileName, contentType string, body []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Send(body)
}
