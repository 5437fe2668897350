package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/store"
	"github.com/youtubelmm/api/internal/validate"
)

var (
	ErrInvalidURL     = errors.New("please send a valid YouTube URL")
	ErrNotOwner       = errors.New("this task does not belong to you")
	ErrResultNotReady = errors.New("task is not completed")
	ErrResultMissing  = errors.New("task completed but result missing")
)

// NotReadyError reports the status of a task whose result was asked for
// before it completed. It matches ErrResultNotReady.
type NotReadyError struct {
	Status model.TaskStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrResultNotReady, e.Status)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrResultNotReady }

// Resubmitting the same URL inside this window returns the running task.
const dedupeWindow = 10 * time.Minute

// submitStripes bounds the lock set that serializes submissions of one key.
const submitStripes = 64

// TaskRepository is the part of the store the task service needs.
type TaskRepository interface {
	Create(ctx context.Context, ownerID int64, sourceURL string) (*model.Task, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	GetWithResult(ctx context.Context, id int64) (*model.Task, error)
	Transition(ctx context.Context, id int64, status model.TaskStatus, opts ...store.TransitionOption) (*model.Task, error)
}

// StageDispatcher schedules a pipeline stage.
type StageDispatcher interface {
	Enqueue(ctx context.Context, stage pipeline.Stage, runID string, payload any) error
}

type recentSubmission struct {
	TaskID int64
	RunID  string
}

// TaskService accepts submissions and answers owner-scoped queries.
type TaskService struct {
	tasks      TaskRepository
	dispatcher StageDispatcher
	recent     *cache.Cache
	submitMu   [submitStripes]sync.Mutex
	log        *zap.Logger
}

func NewTaskService(tasks TaskRepository, dispatcher StageDispatcher, log *zap.Logger) *TaskService {
	return &TaskService{
		tasks:      tasks,
		dispatcher: dispatcher,
		recent:     cache.New(dedupeWindow, 2*dedupeWindow),
		log:        log,
	}
}

// Submit validates url, persists a task for ownerID and enqueues its first stage.
func (s *TaskService) Submit(ctx context.Context, ownerID int64, rawURL string) (*model.CreateTaskResponse, error) {
	url := strings.TrimSpace(rawURL)
	if !validate.IsYouTubeURL(url) {
		return nil, ErrInvalidURL
	}

	key := fmt.Sprintf("%d|%s", ownerID, url)
	mu := s.submitLock(key)
	mu.Lock()
	defer mu.Unlock()

	if v, ok := s.recent.Get(key); ok {
		prev := v.(recentSubmission)
		task, err := s.tasks.Get(ctx, prev.TaskID)
		if err == nil && !task.Status.IsTerminal() {
			return &model.CreateTaskResponse{
				TaskID:    task.ID,
				RunID:     prev.RunID,
				Status:    task.Status,
				Duplicate: true,
				CreatedAt: task.CreatedAt,
			}, nil
		}
		s.recent.Delete(key)
	}

	task, err := s.tasks.Create(ctx, ownerID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	runID := uuid.NewString()
	env := model.Envelope{TaskID: task.ID, RunID: runID}
	if err := s.dispatcher.Enqueue(ctx, pipeline.StageFetch, runID, env); err != nil {
		if _, terr := s.tasks.Transition(context.WithoutCancel(ctx), task.ID, model.TaskStatusFailed,
			store.WithError("could not schedule processing")); terr != nil {
			s.log.Error("Failed to mark unscheduled task", zap.Int64("task_id", task.ID), zap.Error(terr))
		}
		return nil, fmt.Errorf("failed to enqueue task %d: %w", task.ID, err)
	}
	s.recent.SetDefault(key, recentSubmission{TaskID: task.ID, RunID: runID})

	s.log.Info("Task accepted",
		zap.Int64("task_id", task.ID),
		zap.Int64("owner_id", ownerID),
		zap.String("run_id", runID))

	return &model.CreateTaskResponse{
		TaskID:    task.ID,
		RunID:     runID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt,
	}, nil
}

// submitLock returns the mutex guarding the dedupe check and record of key.
func (s *TaskService) submitLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.submitMu[h.Sum32()%submitStripes]
}

// Get returns the task with its result, if the requester owns it.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID int64) (*model.Task, error) {
	task, err := s.tasks.GetWithResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return task, nil
}

// Result returns the stored result of a completed task owned by the requester.
func (s *TaskService) Result(ctx context.Context, ownerID, taskID int64) (*model.Result, error) {
	task, err := s.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusCompleted {
		return nil, &NotReadyError{Status: task.Status}
	}
	if task.Result == nil {
		return nil, ErrResultMissing
	}
	return task.Result, nil
}
