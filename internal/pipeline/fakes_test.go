package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/store"
)

type fakeSource struct {
	duration int
	err      error
	calls    int
}

func (f *fakeSource) FetchMetadata(ctx context.Context, url string) (model.VideoInfo, error) {
	return model.VideoInfo{Duration: float64(f.duration)}, nil
}

func (f *fakeSource) Download(ctx context.Context, url, dir string, maxDurationSec int) (string, int, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	path := filepath.Join(dir, "source.m4a")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", 0, err
	}
	return path, f.duration, nil
}

type fakeConverter struct{ calls int }

func (f *fakeConverter) ToWAV(ctx context.Context, in, out string) error {
	f.calls++
	return os.WriteFile(out, []byte("wav"), 0o644)
}

type fakeEngine struct {
	result  model.Transcription
	err     error
	observe [][2]float64 // processed, total
	warmup  time.Duration // model load before the first window
	calls   int
}

func (f *fakeEngine) Transcribe(ctx context.Context, wavPath string, sink ProgressSink) (model.Transcription, error) {
	f.calls++
	time.Sleep(f.warmup)
	for i, o := range f.observe {
		sink.Observe(o[0], o[1], i+1)
	}
	if f.err != nil {
		return model.Transcription{}, f.err
	}
	return f.result, nil
}

type fakeSummarizer struct{ calls int }

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, segments []model.Segment) (string, string, error) {
	f.calls++
	return "short summary", "# Topic - Brief notes", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	texts    []string
	files    []model.Document
	failFile bool
}

func (f *fakeNotifier) SendText(ctx context.Context, recipient int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeNotifier) SendFile(ctx context.Context, recipient int64, doc model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFile {
		return errors.New("telegram: 502")
	}
	f.files = append(f.files, doc)
	return nil
}

type fakeArtifacts struct{ keys []string }

func (f *fakeArtifacts) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example/" + key, nil
}

type harness struct {
	store      *store.Store
	source     *fakeSource
	converter  *fakeConverter
	engine     *fakeEngine
	summarizer *fakeSummarizer
	notifier   *fakeNotifier
	artifacts  *fakeArtifacts
	published  []model.ProgressSnapshot
	pipeline   *Pipeline
	root       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{
		store:     st,
		source:    &fakeSource{duration: 300},
		converter: &fakeConverter{},
		engine: &fakeEngine{result: model.Transcription{
			Text:     "hello world",
			Language: "en",
			Segments: []model.Segment{{Start: 0, End: 1.5, Text: "hello"}, {Start: 1.5, End: 3, Text: "world"}},
		}},
		summarizer: &fakeSummarizer{},
		notifier:   &fakeNotifier{},
		artifacts:  &fakeArtifacts{},
		root:       t.TempDir(),
	}
	fast := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	h.pipeline = New(Deps{
		Store:      st,
		Source:     h.source,
		Converter:  h.converter,
		Engine:     h.engine,
		Summarizer: h.summarizer,
		Notifier:   h.notifier,
		Artifacts:  h.artifacts,
		Progress:   PublishFunc(func(s model.ProgressSnapshot) { h.published = append(h.published, s) }),
	}, Options{
		WorkRoot:         h.root,
		MaxVideoSeconds:  3600,
		ProgressInterval: 120 * time.Second,
		Policies: map[Stage]RetryPolicy{
			StageFetch:      fast,
			StageTranscribe: fast,
			StageSummarize:  fast,
			StageFinalize:   {},
		},
	}, nil)
	return h
}

func (h *harness) newTask(t *testing.T) *model.Task {
	t.Helper()
	task, err := h.store.Create(context.Background(), 555, "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (h *harness) reload(t *testing.T, id int64) *model.Task {
	t.Helper()
	task, err := h.store.GetWithResult(context.Background(), id)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	return task
}
