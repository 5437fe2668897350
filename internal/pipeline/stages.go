package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/export"
	"github.com/youtubelmm/api/internal/failure"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/store"
)

// Fetch downloads the source audio of a task into its work dir.
func (p *Pipeline) Fetch(ctx context.Context, env model.Envelope) (model.FetchOutput, error) {
	out := model.FetchOutput{Envelope: env}
	if env.Skip {
		return out, nil
	}
	log := p.taskLog(env.TaskID, StageFetch)

	task, err := p.deps.Store.Get(ctx, env.TaskID)
	if err != nil {
		return out, failure.Classify(string(StageFetch), fmt.Errorf("load task %d: %w", env.TaskID, err))
	}
	if task.Status.IsTerminal() {
		log.Info("task already finished, skipping", zap.String("status", string(task.Status)))
		out.Envelope = env.Skipped()
		return out, nil
	}
	if _, err := p.deps.Store.Transition(ctx, task.ID, model.TaskStatusDownloading, store.WithError("")); err != nil {
		return out, failure.Classify(string(StageFetch), err)
	}

	dir, err := p.workdir.Ensure(task.ID)
	if err != nil {
		return out, failure.Classify(string(StageFetch), err)
	}
	path, duration, err := p.deps.Source.Download(ctx, task.SourceURL, dir, p.opts.MaxVideoSeconds)
	if rej, ok := failure.AsRejection(err); ok {
		p.reject(ctx, task, rej, log)
		out.Envelope = env.Skipped()
		return out, nil
	}
	if err != nil {
		return out, failure.Classify(string(StageFetch), err)
	}

	if _, err := p.deps.Store.Transition(ctx, task.ID, model.TaskStatusDownloaded, store.WithDuration(duration)); err != nil {
		return out, failure.Classify(string(StageFetch), err)
	}
	log.Info("audio downloaded", zap.String("path", path), zap.Int("duration_sec", duration))

	out.SourcePath = path
	out.DurationSec = duration
	return out, nil
}

func (p *Pipeline) reject(ctx context.Context, task *model.Task, rej *failure.Rejection, log *zap.Logger) {
	log.Warn("source rejected", zap.String("reason", string(rej.Reason)), zap.String("error", rej.Error()))
	if _, err := p.deps.Store.Transition(ctx, task.ID, model.TaskStatusFailed, store.WithError(rej.Error())); err != nil {
		log.Error("failed to mark task rejected", zap.Error(err))
	}
	p.notify(ctx, task.OwnerID, fmt.Sprintf("Task %d rejected: %s", task.ID, rej.Error()), log)
	p.cleanup(task.ID, log)
}

// Transcribe converts the downloaded audio to WAV and runs speech recognition.
func (p *Pipeline) Transcribe(ctx context.Context, in model.FetchOutput) (model.TranscribeOutput, error) {
	out := model.TranscribeOutput{FetchOutput: in}
	if in.Skip {
		return out, nil
	}
	log := p.taskLog(in.TaskID, StageTranscribe)

	if _, err := p.deps.Store.Transition(ctx, in.TaskID, model.TaskStatusTranscribing, store.WithError("")); err != nil {
		return out, failure.Classify(string(StageTranscribe), err)
	}

	wav := filepath.Join(p.workdir.Path(in.TaskID), "audio.wav")
	if err := p.deps.Converter.ToWAV(ctx, in.SourcePath, wav); err != nil {
		return out, failure.Classify(string(StageTranscribe), fmt.Errorf("convert to wav: %w", err))
	}

	sink := newProgressSink(in.TaskID, p.opts.ProgressInterval, p.deps.Progress, log)
	tr, err := p.deps.Engine.Transcribe(ctx, wav, sink)
	if err != nil {
		return out, failure.Classify(string(StageTranscribe), fmt.Errorf("transcribe: %w", err))
	}

	if _, err := p.deps.Store.Transition(ctx, in.TaskID, model.TaskStatusTranscribed, store.WithLanguage(tr.Language)); err != nil {
		return out, failure.Classify(string(StageTranscribe), err)
	}
	log.Info("transcription finished", zap.String("language", tr.Language), zap.Int("segments", len(tr.Segments)))

	out.TranscriptText = tr.Text
	out.Language = tr.Language
	out.Segments = tr.Segments
	if out.Segments == nil {
		out.Segments = []model.Segment{}
	}
	return out, nil
}

// Summarize runs the map-reduce summarizer over the transcript.
func (p *Pipeline) Summarize(ctx context.Context, in model.TranscribeOutput) (model.SummarizeOutput, error) {
	out := model.SummarizeOutput{TranscribeOutput: in}
	if in.Skip {
		return out, nil
	}
	log := p.taskLog(in.TaskID, StageSummarize)

	if _, err := p.deps.Store.Transition(ctx, in.TaskID, model.TaskStatusSummarizing, store.WithError("")); err != nil {
		return out, failure.Classify(string(StageSummarize), err)
	}

	summary, outline, err := p.deps.Summarizer.Summarize(ctx, in.TranscriptText, in.Segments)
	if err != nil {
		return out, failure.Classify(string(StageSummarize), fmt.Errorf("summarize: %w", err))
	}
	log.Info("summary ready", zap.Int("summary_len", len(summary)), zap.Int("outline_len", len(outline)))

	out.Summary = summary
	out.Outline = outline
	return out, nil
}

// Finalize persists the result, marks the task completed and delivers the
// exported files. The work dir is always removed.
func (p *Pipeline) Finalize(ctx context.Context, in model.SummarizeOutput) (model.FinalizeOutput, error) {
	out := model.FinalizeOutput{Envelope: in.Envelope}
	if in.Skip {
		return out, nil
	}
	log := p.taskLog(in.TaskID, StageFinalize)
	defer p.cleanup(in.TaskID, log)

	result := &model.Result{
		TaskID:         in.TaskID,
		TranscriptText: in.TranscriptText,
		Summary:        in.Summary,
		Outline:        in.Outline,
	}
	if srt := export.SRT(in.Segments); srt != "" {
		result.SubtitlesSRT = &srt
	}
	if err := p.deps.Store.UpsertResult(ctx, result); err != nil {
		return out, failure.Classify(string(StageFinalize), err)
	}
	task, err := p.deps.Store.Transition(ctx, in.TaskID, model.TaskStatusCompleted, store.WithError(""))
	if err != nil {
		return out, failure.Classify(string(StageFinalize), err)
	}
	out.Status = task.Status

	docs := export.Documents(in.TaskID, result)
	p.archive(ctx, in.TaskID, docs, log)

	p.notify(ctx, task.OwnerID, fmt.Sprintf("Task %d completed. Sending result files.", in.TaskID), log)
	if err := p.sendDocuments(ctx, task.OwnerID, docs); err != nil {
		log.Error("failed to send result files", zap.Error(err))
		p.notify(ctx, task.OwnerID, fmt.Sprintf("Task %d completed, but file delivery failed.", in.TaskID), log)
	}
	return out, nil
}

// Fail marks a task failed after its stage gave up, tells the owner and
// removes the work dir. Tasks already finished are left alone.
func (p *Pipeline) Fail(ctx context.Context, taskID int64, stage Stage, cause error) {
	log := p.taskLog(taskID, stage)
	defer p.cleanup(taskID, log)

	task, err := p.deps.Store.Get(ctx, taskID)
	if err != nil {
		log.Error("cannot load failed task", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	if task.Status.IsTerminal() {
		return
	}
	msg := cause.Error()
	if _, err := p.deps.Store.Transition(ctx, taskID, model.TaskStatusFailed, store.WithError(msg)); err != nil {
		log.Error("failed to mark task failed", zap.Error(err))
	}
	log.Error("task failed", zap.String("error", msg))
	p.notify(ctx, task.OwnerID, fmt.Sprintf("Task %d failed: %s", taskID, msg), log)
}

func (p *Pipeline) archive(ctx context.Context, taskID int64, docs []model.Document, log *zap.Logger) {
	if p.deps.Artifacts == nil {
		return
	}
	for _, doc := range docs {
		key := ArtifactKey(taskID, doc.FileName)
		if _, err := p.deps.Artifacts.Upload(ctx, key, bytesReader(doc.Content), doc.ContentType); err != nil {
			log.Warn("artifact upload failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// ArtifactKey is the object key of an archived file.
func ArtifactKey(taskID int64, fileName string) string {
	return fmt.Sprintf("tasks/%d/%s", taskID, fileName)
}

func (p *Pipeline) notify(ctx context.Context, recipient int64, text string, log *zap.Logger) {
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.SendText(ctx, recipient, text); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

func (p *Pipeline) cleanup(taskID int64, log *zap.Logger) {
	if err := p.workdir.Remove(taskID); err != nil {
		log.Warn("failed to remove work dir", zap.Error(err))
	}
}
