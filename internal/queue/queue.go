// Package queue maps pipeline stages onto asynq task types and queues.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/youtubelmm/api/internal/pipeline"
)

// Queue names. Each runs on its own worker pool.
const (
	QueueASR     = "asr"
	QueueLLM     = "llm"
	QueueDefault = "default"
)

// Task types.
const (
	TypeFetch      = "pipeline:fetch"
	TypeTranscribe = "pipeline:transcribe"
	TypeSummarize  = "pipeline:summarize"
	TypeFinalize   = "pipeline:finalize"
)

// StageSpec routes one stage.
type StageSpec struct {
	Stage pipeline.Stage
	Type  string
	Queue string
}

// Specs lists the stages in execution order.
var Specs = []StageSpec{
	{Stage: pipeline.StageFetch, Type: TypeFetch, Queue: QueueASR},
	{Stage: pipeline.StageTranscribe, Type: TypeTranscribe, Queue: QueueASR},
	{Stage: pipeline.StageSummarize, Type: TypeSummarize, Queue: QueueLLM},
	{Stage: pipeline.StageFinalize, Type: TypeFinalize, Queue: QueueDefault},
}

// AllQueues lists every queue name.
var AllQueues = []string{QueueASR, QueueLLM, QueueDefault}

// SpecFor returns the routing of stage.
func SpecFor(stage pipeline.Stage) (StageSpec, bool) {
	for _, s := range Specs {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageSpec{}, false
}

// SpecForType returns the routing of an asynq task type.
func SpecForType(typ string) (StageSpec, bool) {
	for _, s := range Specs {
		if s.Type == typ {
			return s, true
		}
	}
	return StageSpec{}, false
}

// Next returns the stage after stage, if any.
func Next(stage pipeline.Stage) (pipeline.Stage, bool) {
	for i, s := range Specs {
		if s.Stage == stage && i+1 < len(Specs) {
			return Specs[i+1].Stage, true
		}
	}
	return "", false
}

// TaskID is the asynq task id of a stage within one run.
func TaskID(runID string, stage pipeline.Stage) string {
	return fmt.Sprintf("%s:%s", runID, stage)
}

// RetryDelay is the asynq RetryDelayFunc. n counts previous retries.
func RetryDelay(n int, _ error, t *asynq.Task) time.Duration {
	spec, ok := SpecForType(t.Type())
	if !ok {
		return asynq.DefaultRetryDelayFunc(n, nil, t)
	}
	return pipeline.PolicyFor(spec.Stage).Backoff(n + 1)
}

// StageTimeouts returns the per-attempt deadline of every stage for sources up
// to maxVideoSeconds long. Transcription on CPU may run several times slower
// than real time.
func StageTimeouts(maxVideoSeconds int) map[pipeline.Stage]time.Duration {
	media := time.Duration(maxVideoSeconds) * time.Second
	return map[pipeline.Stage]time.Duration{
		pipeline.StageFetch:      max(30*time.Minute, media),
		pipeline.StageTranscribe: max(time.Hour, 4*media),
		pipeline.StageSummarize:  max(30*time.Minute, media),
		pipeline.StageFinalize:   10 * time.Minute,
	}
}

// Client is the part of asynq.Client used to enqueue.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues stage payloads.
type Dispatcher struct {
	client   Client
	timeouts map[pipeline.Stage]time.Duration
}

func NewDispatcher(client Client, maxVideoSeconds int) *Dispatcher {
	return &Dispatcher{client: client, timeouts: StageTimeouts(maxVideoSeconds)}
}

// Enqueue schedules stage with payload. Within a run a stage is enqueued at
// most once; a duplicate is not an error.
func (d *Dispatcher) Enqueue(ctx context.Context, stage pipeline.Stage, runID string, payload any) error {
	spec, ok := SpecFor(stage)
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(spec.Queue),
		asynq.MaxRetry(pipeline.PolicyFor(stage).MaxRetries),
		asynq.Retention(24 * time.Hour),
		asynq.Timeout(d.timeouts[stage]),
	}
	if runID != "" {
		opts = append(opts, asynq.TaskID(TaskID(runID, stage)))
	}

	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(spec.Type, data), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", spec.Type, err)
	}
	return nil
}
