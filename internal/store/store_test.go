package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/youtubelmm/api/internal/failure"
	"github.com/youtubelmm/api/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func createTask(t *testing.T, s *Store) *model.Task {
	t.Helper()
	task, err := s.Create(context.Background(), 42, "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateStartsInCreated(t *testing.T) {
	s := newTestStore(t)
	task := createTask(t, s)

	if task.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	got, err := s.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.TaskStatusCreated || got.OwnerID != 42 {
		t.Errorf("unexpected task %+v", got)
	}
}

func TestTransitionForwardChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)

	steps := []model.TaskStatus{
		model.TaskStatusDownloading,
		model.TaskStatusDownloaded,
		model.TaskStatusTranscribing,
		model.TaskStatusTranscribed,
		model.TaskStatusSummarizing,
		model.TaskStatusCompleted,
	}
	for _, st := range steps {
		got, err := s.Transition(ctx, task.ID, st)
		if err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
		if got.Status != st {
			t.Fatalf("expected %s, got %s", st, got.Status)
		}
	}
}

func TestTransitionAppliesOptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)

	if _, err := s.Transition(ctx, task.ID, model.TaskStatusDownloading, WithError("old failure")); err != nil {
		t.Fatalf("transition: %v", err)
	}
	got, err := s.Transition(ctx, task.ID, model.TaskStatusDownloaded, WithError(""), WithDuration(754))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Error != nil {
		t.Errorf("expected error cleared, got %q", *got.Error)
	}
	if got.DurationSec == nil || *got.DurationSec != 754 {
		t.Errorf("expected duration 754, got %v", got.DurationSec)
	}

	s.Transition(ctx, task.ID, model.TaskStatusTranscribing)
	got, err = s.Transition(ctx, task.ID, model.TaskStatusTranscribed, WithLanguage("en"))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Language == nil || *got.Language != "en" {
		t.Errorf("expected language en, got %v", got.Language)
	}
}

func TestWithLanguageCutsByCharacter(t *testing.T) {
	updates := map[string]any{}
	WithLanguage("русскийязык")(updates)
	if got := updates["language"]; got != "русскийя" {
		t.Errorf("language = %q", got)
	}
}

func TestOnAppliedOnlyForAppliedTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)
	calls := 0
	count := OnApplied(func() { calls++ })

	if _, err := s.Transition(ctx, task.ID, model.TaskStatusDownloading, count); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := s.Transition(ctx, task.ID, model.TaskStatusSummarizing, count); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Transition(ctx, task.ID, model.TaskStatusFailed, count); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := s.Transition(ctx, task.ID, model.TaskStatusFailed, count); err != nil {
		t.Fatalf("terminal no-op: %v", err)
	}
	if calls != 2 {
		t.Errorf("OnApplied called %d times, want 2", calls)
	}
}

func TestTransitionRejectsSkippedStage(t *testing.T) {
	s := newTestStore(t)
	task := createTask(t, s)

	_, err := s.Transition(context.Background(), task.ID, model.TaskStatusTranscribing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := s.Get(context.Background(), task.ID)
	if got.Status != model.TaskStatusCreated {
		t.Errorf("status changed to %s after rejected transition", got.Status)
	}
}

func TestTransitionAllowsReentryAndRepeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)

	for _, st := range []model.TaskStatus{
		model.TaskStatusDownloading,
		model.TaskStatusDownloading,
		model.TaskStatusDownloaded,
		model.TaskStatusDownloading,
		model.TaskStatusDownloaded,
	} {
		if _, err := s.Transition(ctx, task.ID, st); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}

func TestTerminalTaskIsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)

	failed, err := s.Transition(ctx, task.ID, model.TaskStatusFailed, WithError("boom"))
	if err != nil {
		t.Fatalf("fail task: %v", err)
	}

	for _, st := range model.AllTaskStatuses {
		got, err := s.Transition(ctx, task.ID, st, WithError("changed"))
		if err != nil {
			t.Fatalf("transition on terminal task to %s returned %v", st, err)
		}
		if got.Status != model.TaskStatusFailed || got.Error == nil || *got.Error != "boom" {
			t.Fatalf("terminal task mutated: %+v", got)
		}
		if !got.UpdatedAt.Equal(failed.UpdatedAt) {
			t.Fatalf("updated_at moved on terminal task")
		}
	}
}

func TestFailedReachableFromEveryActiveStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chain := []model.TaskStatus{
		model.TaskStatusDownloading,
		model.TaskStatusDownloaded,
		model.TaskStatusTranscribing,
		model.TaskStatusTranscribed,
		model.TaskStatusSummarizing,
	}
	for i := 0; i <= len(chain); i++ {
		task := createTask(t, s)
		for _, st := range chain[:i] {
			if _, err := s.Transition(ctx, task.ID, st); err != nil {
				t.Fatalf("transition to %s: %v", st, err)
			}
		}
		got, err := s.Transition(ctx, task.ID, model.TaskStatusFailed)
		if err != nil || got.Status != model.TaskStatusFailed {
			t.Fatalf("fail after %d steps: %v %+v", i, err, got)
		}
	}
}

func TestTransitionMissingTask(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Transition(context.Background(), 999, model.TaskStatusDownloading)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if !errors.Is(err, failure.ErrPermanent) {
		t.Fatal("not found must be permanent")
	}
}

func TestUpsertResultAndDeleteCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := createTask(t, s)

	res := &model.Result{TaskID: task.ID, TranscriptText: "a", Summary: "s1", Outline: "o1"}
	if err := s.UpsertResult(ctx, res); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	srt := "1\n00:00:00,000 --> 00:00:01,000\na\n"
	res2 := &model.Result{TaskID: task.ID, TranscriptText: "a", SubtitlesSRT: &srt, Summary: "s2", Outline: "o2"}
	if err := s.UpsertResult(ctx, res2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetWithResult(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Result == nil || got.Result.Summary != "s2" || got.Result.SubtitlesSRT == nil {
		t.Fatalf("unexpected result %+v", got.Result)
	}

	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var count int64
	s.DB().Model(&model.Result{}).Where("task_id = ?", task.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected result removed with task, found %d", count)
	}
	if err := s.Delete(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTask(t, s)
	createTask(t, s)
	s.Transition(ctx, a.ID, model.TaskStatusFailed)

	failed, err := s.List(ctx, ListFilter{Status: model.TaskStatusFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != a.ID {
		t.Fatalf("unexpected failed list %+v", failed)
	}
	all, _ := s.List(ctx, ListFilter{Limit: 10})
	if len(all) != 2 || all[0].ID < all[1].ID {
		t.Fatalf("expected two tasks newest first, got %+v", all)
	}
}
