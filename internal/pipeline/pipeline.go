// Package pipeline runs the four processing stages of a task: fetch,
// transcribe, summarize and finalize. Each stage reads and validates the
// persisted task, calls one collaborator, records the new status and returns
// a typed payload for the next stage.
package pipeline

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/store"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StageFinalize   Stage = "finalize"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageFetch, StageTranscribe, StageSummarize, StageFinalize}

// TaskStore is the persistence the stages need.
type TaskStore interface {
	Get(ctx context.Context, id int64) (*model.Task, error)
	Transition(ctx context.Context, id int64, status model.TaskStatus, opts ...store.TransitionOption) (*model.Task, error)
	UpsertResult(ctx context.Context, result *model.Result) error
}

// VideoSource resolves and downloads the audio of a video. Download returns a
// *failure.Rejection for sources that must not be retried.
type VideoSource interface {
	FetchMetadata(ctx context.Context, url string) (model.VideoInfo, error)
	Download(ctx context.Context, url, dir string, maxDurationSec int) (path string, durationSec int, err error)
}

// MediaConverter turns any media file into 16 kHz mono WAV.
type MediaConverter interface {
	ToWAV(ctx context.Context, in, out string) error
}

// ProgressSink receives raw progress observations from a speech engine.
type ProgressSink interface {
	Observe(processedSec, totalSec float64, segments int)
}

// SpeechEngine transcribes a WAV file.
type SpeechEngine interface {
	Transcribe(ctx context.Context, wavPath string, sink ProgressSink) (model.Transcription, error)
}

// TextSummarizer produces the summary and outline of a transcript.
type TextSummarizer interface {
	Summarize(ctx context.Context, text string, segments []model.Segment) (summary, outline string, err error)
}

// Notifier delivers messages and files to the task owner.
type Notifier interface {
	SendText(ctx context.Context, recipient int64, text string) error
	SendFile(ctx context.Context, recipient int64, doc model.Document) error
}

// ArtifactStore archives exported files and returns their URL.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// ProgressPublisher fans progress snapshots out to observers. Publish must
// not block.
type ProgressPublisher interface {
	Publish(snap model.ProgressSnapshot)
}

// Deps are the collaborators of a Pipeline. Notifier, Artifacts and Progress
// are optional.
type Deps struct {
	Store      TaskStore
	Source     VideoSource
	Converter  MediaConverter
	Engine     SpeechEngine
	Summarizer TextSummarizer
	Notifier   Notifier
	Artifacts  ArtifactStore
	Progress   ProgressPublisher
}

// Options are the tunables of a Pipeline.
type Options struct {
	WorkRoot         string
	MaxVideoSeconds  int
	ProgressInterval time.Duration
	Policies         map[Stage]RetryPolicy // nil means DefaultPolicies
}

// Pipeline executes stages against its collaborators.
type Pipeline struct {
	deps    Deps
	opts    Options
	workdir WorkDir
	log     *zap.Logger
}

func New(deps Deps, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		workdir: WorkDir{Root: opts.WorkRoot},
		log:     log,
	}
}

func (p *Pipeline) policy(stage Stage) RetryPolicy {
	if p.opts.Policies != nil {
		return p.opts.Policies[stage]
	}
	return PolicyFor(stage)
}

// WorkDir returns the scratch directory layout.
func (p *Pipeline) WorkDir() WorkDir { return p.workdir }

func (p *Pipeline) taskLog(taskID int64, stage Stage) *zap.Logger {
	return p.log.With(zap.Int64("task_id", taskID), zap.String("stage", string(stage)))
}
