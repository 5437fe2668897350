package service

import (
	"context"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/store"
)

// StatusPublisher announces status changes.
type StatusPublisher interface {
	PublishStatus(ev model.StatusEvent)
}

// ObservedStore announces every status transition the wrapped store applies.
type ObservedStore struct {
	pipeline.TaskStore
	events StatusPublisher
}

func NewObservedStore(inner pipeline.TaskStore, events StatusPublisher) *ObservedStore {
	return &ObservedStore{TaskStore: inner, events: events}
}

func (s *ObservedStore) Transition(ctx context.Context, id int64, status model.TaskStatus, opts ...store.TransitionOption) (*model.Task, error) {
	applied := false
	opts = append(opts, store.OnApplied(func() { applied = true }))
	task, err := s.TaskStore.Transition(ctx, id, status, opts...)
	if err != nil {
		return nil, err
	}
	if !applied {
		return task, nil
	}
	ev := model.StatusEvent{TaskID: task.ID, Status: task.Status}
	if task.Error != nil {
		ev.Error = *task.Error
	}
	s.events.PublishStatus(ev)
	return task, nil
}
