package summarize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/youtubelmm/api/internal/model"
)

var chunkRe = regexp.MustCompile(`Chunk #(\d+):`)

type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	fail    string
}

func (f *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.fail != "" && strings.Contains(prompt, f.fail) {
		return "", errors.New("model unavailable")
	}
	if m := chunkRe.FindStringSubmatch(prompt); m != nil {
		// later chunks answer first
		var n int
		fmt.Sscan(m[1], &n)
		time.Sleep(time.Duration(10-n) * 5 * time.Millisecond)
		return fmt.Sprintf("  partial-%s  ", m[1]), nil
	}
	if strings.Contains(prompt, "Build a structured lecture outline") {
		return "# Topic - Brief notes\n", nil
	}
	return "final summary\n", nil
}

func (f *fakeModel) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func minuteSegments(n int) []model.Segment {
	segs := make([]model.Segment, n)
	for i := range segs {
		segs[i] = model.Segment{Start: float64(i * 60), End: float64(i*60 + 60), Text: fmt.Sprintf("part %d", i)}
	}
	return segs
}

func TestBlankTranscriptSkipsModel(t *testing.T) {
	fm := &fakeModel{}
	s := New(fm, Options{}, nil)

	summary, outline, err := s.Summarize(context.Background(), "  \n ", nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != NoSpeechSummary || outline != NoSpeechOutline {
		t.Errorf("unexpected placeholders %q / %q", summary, outline)
	}
	if len(fm.calls()) != 0 {
		t.Errorf("expected no model calls, got %d", len(fm.calls()))
	}
}

func TestMapReduceKeepsChunkOrder(t *testing.T) {
	fm := &fakeModel{}
	s := New(fm, Options{ChunkSpan: 10 * time.Minute, Language: "Russian", MapConcurrency: 4}, nil)

	// 35 one-minute segments give four chunks.
	summary, outline, err := s.Summarize(context.Background(), "text", minuteSegments(35))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "final summary" || outline != "# Topic - Brief notes" {
		t.Errorf("unexpected output %q / %q", summary, outline)
	}

	calls := fm.calls()
	if len(calls) != 6 {
		t.Fatalf("expected 4 map and 2 reduce calls, got %d", len(calls))
	}
	var reduce []string
	for _, p := range calls {
		if !strings.Contains(p, "Russian") {
			t.Errorf("prompt missing output language: %q", p)
		}
		if !chunkRe.MatchString(p) {
			reduce = append(reduce, p)
		}
	}
	if len(reduce) != 2 {
		t.Fatalf("expected 2 reduce prompts, got %d", len(reduce))
	}
	want := "partial-1\n\npartial-2\n\npartial-3\n\npartial-4"
	for _, p := range reduce {
		if !strings.HasSuffix(p, want) {
			t.Errorf("reduce prompt does not end with ordered partials:\n%s", p)
		}
	}
}

func TestNoSegmentsFallsBackToWholeTranscript(t *testing.T) {
	fm := &fakeModel{}
	s := New(fm, Options{}, nil)

	if _, _, err := s.Summarize(context.Background(), "whole lecture text", nil); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	var found bool
	for _, p := range fm.calls() {
		if strings.Contains(p, "Chunk #1:\nwhole lecture text") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a single synthetic chunk with the transcript")
	}
}

func TestMapErrorAborts(t *testing.T) {
	fm := &fakeModel{fail: "Chunk #2:"}
	s := New(fm, Options{MapConcurrency: 2}, nil)

	_, _, err := s.Summarize(context.Background(), "text", minuteSegments(25))
	if err == nil || !strings.Contains(err.Error(), "chunk 2") {
		t.Fatalf("expected chunk 2 error, got %v", err)
	}
	for _, p := range fm.calls() {
		if !chunkRe.MatchString(p) {
			t.Fatal("reduce must not run after a map failure")
		}
	}
}
