package pipeline

import (
	"context"

	"github.com/youtubelmm/api/internal/model"
)

// Run executes every stage in-process, retrying each one with its policy. A
// stage that gives up fails the task.
func (p *Pipeline) Run(ctx context.Context, env model.Envelope) (model.FinalizeOutput, error) {
	fetched, err := runStage(ctx, p, StageFetch, env.TaskID, func(ctx context.Context) (model.FetchOutput, error) {
		return p.Fetch(ctx, env)
	})
	if err != nil || fetched.Skip {
		return model.FinalizeOutput{Envelope: fetched.Envelope}, err
	}
	transcribed, err := runStage(ctx, p, StageTranscribe, env.TaskID, func(ctx context.Context) (model.TranscribeOutput, error) {
		return p.Transcribe(ctx, fetched)
	})
	if err != nil {
		return model.FinalizeOutput{Envelope: env}, err
	}
	summarized, err := runStage(ctx, p, StageSummarize, env.TaskID, func(ctx context.Context) (model.SummarizeOutput, error) {
		return p.Summarize(ctx, transcribed)
	})
	if err != nil {
		return model.FinalizeOutput{Envelope: env}, err
	}
	return runStage(ctx, p, StageFinalize, env.TaskID, func(ctx context.Context) (model.FinalizeOutput, error) {
		return p.Finalize(ctx, summarized)
	})
}

func runStage[T any](ctx context.Context, p *Pipeline, stage Stage, taskID int64, fn func(context.Context) (T, error)) (T, error) {
	out, err := Retry(ctx, p.policy(stage), fn)
	if err != nil {
		p.Fail(context.WithoutCancel(ctx), taskID, stage, err)
	}
	return out, err
}
