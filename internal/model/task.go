package model

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskStatusCreated      TaskStatus = "created"
	TaskStatusDownloading  TaskStatus = "downloading"
	TaskStatusDownloaded   TaskStatus = "downloaded"
	TaskStatusTranscribing TaskStatus = "transcribing"
	TaskStatusTranscribed  TaskStatus = "transcribed"
	TaskStatusSummarizing  TaskStatus = "summarizing"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusFailed       TaskStatus = "failed"
)

// statusRank orders the non-failed statuses along the pipeline.
var statusRank = map[TaskStatus]int{
	TaskStatusCreated:      0,
	TaskStatusDownloading:  1,
	TaskStatusDownloaded:   2,
	TaskStatusTranscribing: 3,
	TaskStatusTranscribed:  4,
	TaskStatusSummarizing:  5,
	TaskStatusCompleted:    6,
}

// AllTaskStatuses lists every status in pipeline order.
var AllTaskStatuses = []TaskStatus{
	TaskStatusCreated,
	TaskStatusDownloading,
	TaskStatusDownloaded,
	TaskStatusTranscribing,
	TaskStatusTranscribed,
	TaskStatusSummarizing,
	TaskStatusCompleted,
	TaskStatusFailed,
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	if s == TaskStatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transition is accepted.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus converts raw text into a TaskStatus.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown task status %q", raw)
	}
	return s, nil
}

// CanTransition reports whether from -> to is an edge of the task state machine.
// Staying in place is allowed so retried stages can re-apply their status, and a
// stage may re-enter its active status from its own done status.
func CanTransition(from, to TaskStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if from == to || to == TaskStatusFailed {
		return true
	}
	switch {
	case from == TaskStatusDownloaded && to == TaskStatusDownloading:
		return true
	case from == TaskStatusTranscribed && to == TaskStatusTranscribing:
		return true
	}
	return statusRank[to] == statusRank[from]+1
}

// Task is one submission tracked through the pipeline.
type Task struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     int64      `gorm:"not null;index" json:"ownerId"`
	SourceURL   string     `gorm:"type:text;not null" json:"sourceUrl"`
	Status      TaskStatus `gorm:"type:varchar(32);not null;default:'created';index" json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Error       *string    `gorm:"type:text" json:"error,omitempty"`
	Language    *string    `gorm:"type:varchar(8)" json:"language,omitempty"`
	DurationSec *int       `json:"durationSec,omitempty"`

	Result *Result `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"result,omitempty"`
}

// TableName pins the table name used by gorm.
func (Task) TableName() string { return "tasks" }

// Result is the durable output of a finalized task.
type Result struct {
	TaskID         int64     `gorm:"primaryKey;autoIncrement:false" json:"taskId"`
	TranscriptText string    `gorm:"type:text;not null" json:"transcriptText"`
	SubtitlesSRT   *string   `gorm:"column:subtitles_srt;type:text" json:"subtitlesSrt,omitempty"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	Outline        string    `gorm:"type:text;not null" json:"outline"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName pins the table name used by gorm.
func (Result) TableName() string { return "results" }

// TaskStatusResponse is the API view of a task.
type TaskStatusResponse struct {
	TaskID      int64      `json:"taskId"`
	Status      TaskStatus `json:"status"`
	SourceURL   string     `json:"sourceUrl"`
	Error       *string    `json:"error,omitempty"`
	Language    *string    `json:"language,omitempty"`
	DurationSec *int       `json:"durationSec,omitempty"`
	HasResult   bool       `json:"hasResult"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	URL string `json:"url" validate:"required,youtube_url"`
}

// CreateTaskResponse is returned when a task is accepted.
type CreateTaskResponse struct {
	TaskID    int64      `json:"taskId"`
	RunID     string     `json:"runId"`
	Status    TaskStatus `json:"status"`
	Duplicate bool       `json:"duplicate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewTaskStatusResponse builds the API view of t.
func NewTaskStatusResponse(t *Task) *TaskStatusResponse {
	return &TaskStatusResponse{
		TaskID:      t.ID,
		Status:      t.Status,
		SourceURL:   t.SourceURL,
		Error:       t.Error,
		Language:    t.Language,
		DurationSec: t.DurationSec,
		HasResult:   t.Result != nil,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
