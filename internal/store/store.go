// Package store persists tasks and results with gorm and enforces the task
// state machine on every status change.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/youtubelmm/api/internal/failure"
	"github.com/youtubelmm/api/internal/model"
)

var (
	ErrTaskNotFound      = fmt.Errorf("task not found: %w", failure.ErrPermanent)
	ErrInvalidTransition = fmt.Errorf("invalid status transition: %w", failure.ErrPermanent)
)

// Store is the task repository.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database named by dsn. postgres:// and postgresql://
// URLs select Postgres; sqlite://path or a bare path selects SQLite.
func Open(dsn string) (*Store, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, errors.New("empty database url")
		}
		if !strings.HasPrefix(path, "file:") && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return New(db), nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the tasks and results tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Task{}, &model.Result{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Create inserts a new task in the created status.
func (s *Store) Create(ctx context.Context, ownerID int64, sourceURL string) (*model.Task, error) {
	task := &model.Task{
		OwnerID:   ownerID,
		SourceURL: sourceURL,
		Status:    model.TaskStatusCreated,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Get loads a task without its result.
func (s *Store) Get(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// GetWithResult loads a task together with its result, if any.
func (s *Store) GetWithResult(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).Preload("Result").First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// TransitionOption sets an extra column during a transition.
type TransitionOption func(updates map[string]any)

// WithError records msg as the task error. An empty msg clears it.
func WithError(msg string) TransitionOption {
	return func(u map[string]any) {
		if msg == "" {
			u["error"] = nil
			return
		}
		u["error"] = msg
	}
}

// WithLanguage records the detected transcript language, cut to the first
// eight characters.
func WithLanguage(lang string) TransitionOption {
	return func(u map[string]any) {
		if r := []rune(lang); len(r) > 8 {
			lang = string(r[:8])
		}
		u["language"] = lang
	}
}

// OnApplied calls fn when the transition is applied. Terminal tasks and
// rejected transitions never call it.
func OnApplied(fn func()) TransitionOption {
	return func(map[string]any) { fn() }
}

// WithDuration records the source duration in seconds.
func WithDuration(sec int) TransitionOption {
	return func(u map[string]any) { u["duration_sec"] = sec }
}

// Transition moves a task to status. A task already in a terminal status is
// returned unchanged.
func (s *Store) Transition(ctx context.Context, id int64, status model.TaskStatus, opts ...TransitionOption) (*model.Task, error) {
	var out model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&out, id).Error; err != nil {
			return notFound(err)
		}
		if out.Status.IsTerminal() {
			return nil
		}
		if !model.CanTransition(out.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, out.Status, status)
		}

		updates := map[string]any{"status": status, "updated_at": time.Now()}
		for _, opt := range opts {
			opt(updates)
		}
		if err := tx.Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("update task %d: %w", id, err)
		}
		return tx.First(&out, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertResult inserts or replaces the result row of a task.
func (s *Store) UpsertResult(ctx context.Context, result *model.Result) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"transcript_text", "subtitles_srt", "summary", "outline", "updated_at"}),
	}).Create(result).Error
	if err != nil {
		return fmt.Errorf("upsert result for task %d: %w", result.TaskID, err)
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status  model.TaskStatus
	OwnerID int64
	Limit   int
}

// List returns tasks newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]model.Task, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var tasks []model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task and its result.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&model.Result{}).Error; err != nil {
			return fmt.Errorf("delete result %d: %w", id, err)
		}
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete task %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskNotFound
	}
	return err
}
