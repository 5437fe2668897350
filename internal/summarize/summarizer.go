// Package summarize turns a transcript into a narrative summary and a lecture
// outline with a map-reduce over transcript chunks.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/transcript"
)

// TextModel generates text for a single prompt.
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options tune the map-reduce.
type Options struct {
	ChunkSpan      time.Duration
	Language       string
	MapConcurrency int
}

// Summarizer runs the map-reduce against a TextModel.
type Summarizer struct {
	model TextModel
	opts  Options
	log   *zap.Logger
}

func New(m TextModel, opts Options, log *zap.Logger) *Summarizer {
	if opts.ChunkSpan <= 0 {
		opts.ChunkSpan = transcript.DefaultChunkSpan
	}
	if opts.Language == "" {
		opts.Language = "English"
	}
	if opts.MapConcurrency <= 0 {
		opts.MapConcurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{model: m, opts: opts, log: log}
}

// Summarize returns the final summary and outline for text. A blank
// transcript yields fixed placeholders without calling the model.
func (s *Summarizer) Summarize(ctx context.Context, text string, segments []model.Segment) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return NoSpeechSummary, NoSpeechOutline, nil
	}

	chunks := transcript.ChunksOrWhole(text, segments, s.opts.ChunkSpan)
	s.log.Debug("summarizing transcript", zap.Int("chunks", len(chunks)))

	partials, err := s.mapChunks(ctx, chunks)
	if err != nil {
		return "", "", err
	}
	merged := strings.Join(partials, "\n\n")

	var summary, outline string
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		out, err := s.ask(ctx, summaryPrompt(s.opts.Language, merged))
		if err != nil {
			return fmt.Errorf("final summary: %w", err)
		}
		summary = out
		return nil
	})
	p.Go(func(ctx context.Context) error {
		out, err := s.ask(ctx, outlinePrompt(s.opts.Language, merged))
		if err != nil {
			return fmt.Errorf("outline: %w", err)
		}
		outline = out
		return nil
	})
	if err := p.Wait(); err != nil {
		return "", "", err
	}
	return summary, outline, nil
}

// mapChunks summarizes every chunk, keeping input order.
func (s *Summarizer) mapChunks(ctx context.Context, chunks []transcript.Chunk) ([]string, error) {
	type job struct {
		idx   int
		chunk transcript.Chunk
	}
	jobs := make([]job, len(chunks))
	for i, c := range chunks {
		jobs[i] = job{idx: i + 1, chunk: c}
	}

	mapper := iter.Mapper[job, string]{MaxGoroutines: s.opts.MapConcurrency}
	return mapper.MapErr(jobs, func(j *job) (string, error) {
		out, err := s.ask(ctx, chunkPrompt(s.opts.Language, j.idx, j.chunk.Text()))
		if err != nil {
			return "", fmt.Errorf("chunk %d: %w", j.idx, err)
		}
		return out, nil
	})
}

func (s *Summarizer) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
