package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/failure"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/queue"
)

// Stages is the stage surface of pipeline.Pipeline.
type Stages interface {
	Fetch(ctx context.Context, env model.Envelope) (model.FetchOutput, error)
	Transcribe(ctx context.Context, in model.FetchOutput) (model.TranscribeOutput, error)
	Summarize(ctx context.Context, in model.TranscribeOutput) (model.SummarizeOutput, error)
	Finalize(ctx context.Context, in model.SummarizeOutput) (model.FinalizeOutput, error)
	Fail(ctx context.Context, taskID int64, stage pipeline.Stage, cause error)
}

// Enqueuer schedules the next stage.
type Enqueuer interface {
	Enqueue(ctx context.Context, stage pipeline.Stage, runID string, payload any) error
}

// failTimeout bounds marking a task failed once its own deadline has passed.
const failTimeout = 30 * time.Second

// handoffPolicy retries the enqueue of the next stage without re-running the
// finished one.
var handoffPolicy = pipeline.RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 0.5}

// StageWorker adapts pipeline stages to asynq handlers and chains them.
type StageWorker struct {
	stages   Stages
	next     Enqueuer
	log      *zap.Logger
	attempts func(ctx context.Context) (retried, max int)
	handoff  pipeline.RetryPolicy
}

func NewStageWorker(stages Stages, next Enqueuer, log *zap.Logger) *StageWorker {
	return &StageWorker{stages: stages, next: next, log: log, attempts: asynqAttempts, handoff: handoffPolicy}
}

func asynqAttempts(ctx context.Context) (int, int) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried, maxRetry
}

// Register installs the handler of every stage.
func (w *StageWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeFetch, w.ProcessFetch)
	mux.HandleFunc(queue.TypeTranscribe, w.ProcessTranscribe)
	mux.HandleFunc(queue.TypeSummarize, w.ProcessSummarize)
	mux.HandleFunc(queue.TypeFinalize, w.ProcessFinalize)
}

func (w *StageWorker) ProcessFetch(ctx context.Context, t *asynq.Task) error {
	return process(ctx, w, pipeline.StageFetch, t, w.stages.Fetch)
}

func (w *StageWorker) ProcessTranscribe(ctx context.Context, t *asynq.Task) error {
	return process(ctx, w, pipeline.StageTranscribe, t, w.stages.Transcribe)
}

func (w *StageWorker) ProcessSummarize(ctx context.Context, t *asynq.Task) error {
	return process(ctx, w, pipeline.StageSummarize, t, w.stages.Summarize)
}

func (w *StageWorker) ProcessFinalize(ctx context.Context, t *asynq.Task) error {
	return process(ctx, w, pipeline.StageFinalize, t, w.stages.Finalize)
}

type enveloped interface {
	Env() model.Envelope
}

func process[In, Out enveloped](ctx context.Context, w *StageWorker, stage pipeline.Stage, t *asynq.Task, run func(context.Context, In) (Out, error)) error {
	var in In
	if err := json.Unmarshal(t.Payload(), &in); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", stage, err, asynq.SkipRetry)
	}
	env := in.Env()
	log := w.log.With(zap.Int64("task_id", env.TaskID), zap.String("stage", string(stage)), zap.String("run_id", env.RunID))

	out, err := run(ctx, in)
	if err != nil {
		return w.giveUpOrRetry(ctx, log, env.TaskID, stage, err)
	}

	if out.Env().Skip {
		log.Info("chain short-circuited")
		return nil
	}
	nextStage, ok := queue.Next(stage)
	if !ok {
		log.Info("pipeline finished")
		return nil
	}
	_, err = pipeline.Retry(ctx, w.handoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, failure.Classify(string(stage), w.next.Enqueue(ctx, nextStage, out.Env().RunID, out))
	})
	if err != nil {
		return w.giveUpOrRetry(ctx, log, env.TaskID, stage, fmt.Errorf("enqueue %s: %w", nextStage, err))
	}
	log.Debug("next stage enqueued", zap.String("next", string(nextStage)))
	return nil
}

// giveUpOrRetry returns err for asynq to retry while the attempt budget
// lasts. Otherwise the task is failed and the asynq task archived.
func (w *StageWorker) giveUpOrRetry(ctx context.Context, log *zap.Logger, taskID int64, stage pipeline.Stage, err error) error {
	retried, maxRetry := w.attempts(ctx)
	if failure.IsRetryable(err) && retried < maxRetry {
		log.Warn("stage failed, will retry", zap.Int("retried", retried), zap.Int("max_retry", maxRetry), zap.Error(err))
		return err
	}
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	w.stages.Fail(failCtx, taskID, stage, err)
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
