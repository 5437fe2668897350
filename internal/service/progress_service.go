package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
)

const (
	ProgressChannel = "progress"
	StatusChannel   = "status"
	progressTTL     = 24 * time.Hour
	progressBuffer  = 64
)

func progressKey(taskID int64) string {
	return fmt.Sprintf("progress:%d", taskID)
}

// ProgressService carries transcription snapshots and status changes from
// workers to API subscribers through redis. Publishing never blocks the caller.
type ProgressService struct {
	redis    *redis.Client
	pending  chan model.ProgressSnapshot
	statuses chan model.StatusEvent
	log      *zap.Logger
}

func NewProgressService(redisClient *redis.Client, log *zap.Logger) *ProgressService {
	return newProgressService(redisClient, progressBuffer, log)
}

func newProgressService(redisClient *redis.Client, buffer int, log *zap.Logger) *ProgressService {
	return &ProgressService{
		redis:    redisClient,
		pending:  make(chan model.ProgressSnapshot, buffer),
		statuses: make(chan model.StatusEvent, buffer),
		log:      log,
	}
}

// Publish queues snap for delivery, dropping it when the buffer is full.
func (s *ProgressService) Publish(snap model.ProgressSnapshot) {
	select {
	case s.pending <- snap:
	default:
		s.log.Debug("Progress snapshot dropped", zap.Int64("task_id", snap.TaskID))
	}
}

// PublishStatus queues a status change, dropping it when the buffer is full.
func (s *ProgressService) PublishStatus(ev model.StatusEvent) {
	select {
	case s.statuses <- ev:
	default:
		s.log.Debug("Status event dropped", zap.Int64("task_id", ev.TaskID))
	}
}

// Run writes queued snapshots and status events until ctx is done.
func (s *ProgressService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.pending:
			if err := s.write(ctx, snap); err != nil {
				s.log.Warn("Failed to publish progress", zap.Int64("task_id", snap.TaskID), zap.Error(err))
			}
		case ev := <-s.statuses:
			data, err := json.Marshal(ev)
			if err == nil {
				err = s.redis.Publish(ctx, StatusChannel, data).Err()
			}
			if err != nil {
				s.log.Warn("Failed to publish status", zap.Int64("task_id", ev.TaskID), zap.Error(err))
			}
		}
	}
}

func (s *ProgressService) write(ctx context.Context, snap model.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, progressKey(snap.TaskID), data, progressTTL)
	pipe.Publish(ctx, ProgressChannel, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest returns the last snapshot of a task, or nil when none was recorded.
func (s *ProgressService) Latest(ctx context.Context, taskID int64) (*model.ProgressSnapshot, error) {
	data, err := s.redis.Get(ctx, progressKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Subscribe delivers every snapshot and status event published by any worker
// until ctx is done.
func (s *ProgressService) Subscribe(ctx context.Context, onProgress func(model.ProgressSnapshot), onStatus func(model.StatusEvent)) error {
	sub := s.redis.Subscribe(ctx, ProgressChannel, StatusChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ProgressChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := dispatch(msg, onProgress, onStatus); err != nil {
				s.log.Warn("Malformed progress message", zap.String("channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func dispatch(msg *redis.Message, onProgress func(model.ProgressSnapshot), onStatus func(model.StatusEvent)) error {
	switch msg.Channel {
	case StatusChannel:
		var ev model.StatusEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			return err
		}
		onStatus(ev)
	default:
		var snap model.ProgressSnapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			return err
		}
		onProgress(snap)
	}
	return nil
}
