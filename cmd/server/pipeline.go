package main

import (
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/client"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/summarize"
)

// pipelineParts are the collaborators a caller may still need after the
// pipeline is built.
type pipelineParts struct {
	pipeline *pipeline.Pipeline
	engine   *client.WhisperEngine
}

// buildPipeline assembles the stage executor. notifier, artifacts and
// progress may be nil.
func (c *commandContext) buildPipeline(st pipeline.TaskStore, notifier *client.TelegramClient, artifacts *client.R2Client, progress pipeline.ProgressPublisher) pipelineParts {
	cfg := c.cfg
	log := c.log.Logger

	engine := client.NewWhisperEngine(&cfg.Whisper, client.NewWhisperModel(&cfg.Whisper, log), log.Named("asr"))
	llm := client.NewOpenAIClient(&cfg.OpenAI)
	if !llm.IsConfigured() {
		log.Warn("OPENAI_API_KEY is not set, summarization will fail")
	}
	summarizer := summarize.New(llm, summarize.Options{
		ChunkSpan:      cfg.ChunkSpan(),
		Language:       cfg.Summary.Language,
		MapConcurrency: cfg.Summary.MapConcurrency,
	}, log.Named("summarize"))

	deps := pipeline.Deps{
		Store:      st,
		Source:     client.NewYtDlpClient(&cfg.YtDlp, log.Named("ytdlp")),
		Converter:  client.NewFFmpegConverter(&cfg.FFmpeg),
		Engine:     engine,
		Summarizer: summarizer,
		Progress:   progress,
	}
	// typed nils must not reach the optional interfaces
	if notifier != nil {
		deps.Notifier = notifier
	} else {
		log.Warn("Telegram bot token not set, results will not be delivered")
	}
	if artifacts != nil {
		deps.Artifacts = artifacts
	}

	p := pipeline.New(deps, pipeline.Options{
		WorkRoot:         cfg.Pipeline.WorkRoot,
		MaxVideoSeconds:  cfg.MaxVideoSeconds(),
		ProgressInterval: cfg.ProgressInterval(),
	}, log.With(zap.String("component", "pipeline")))

	return pipelineParts{pipeline: p, engine: engine}
}
