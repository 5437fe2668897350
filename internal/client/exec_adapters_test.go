package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/failure"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	run    func(ctx context.Context, name string, args ...string) (commandResult, error)
	stream func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) record(name string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.record(name, args)
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func (f *fakeRunner) Stream(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
	f.record(name, args)
	if f.stream == nil {
		return commandResult{}, nil
	}
	return f.stream(ctx, onLine, name, args...)
}

func noPause(context.Context, time.Duration) error { return nil }

func newTestYtDlp(runner commandRunner) *YtDlpClient {
	return &YtDlpClient{binary: "yt-dlp", runner: runner, pause: noPause, log: zap.NewNop()}
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func failed(stderr string) (commandResult, error) {
	return commandResult{Stderr: stderr, ExitCode: 1}, errors.New("exit status 1")
}

func TestFetchMetadataFallsBackThroughClients(t *testing.T) {
	calls := 0
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		calls++
		if calls < 3 {
			return failed("ERROR: Sign in to confirm you're not a bot")
		}
		return commandResult{Stdout: `{"id":"abc","title":"Lecture","duration":125.4}`}, nil
	}}
	c := newTestYtDlp(runner)

	info, err := c.FetchMetadata(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if info.Title != "Lecture" || info.Duration != 125.4 {
		t.Fatalf("info = %+v", info)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(runner.calls))
	}
	// Third attempt is the second client set with a format.
	third := runner.calls[2]
	if got := argValue(third, "--extractor-args"); got != "youtube:player_client=android" {
		t.Fatalf("extractor args = %q", got)
	}
	if got := argValue(third, "-f"); got != "bestaudio/best" {
		t.Fatalf("format = %q", got)
	}
	if third[len(third)-1] != "https://youtu.be/abc" {
		t.Fatalf("url must be last, got %v", third)
	}
}

func TestFetchMetadataRejectsWhenEveryAttemptFails(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return failed("ERROR: Video unavailable")
	}}
	c := newTestYtDlp(runner)

	_, err := c.FetchMetadata(context.Background(), "https://youtu.be/gone")
	rej, ok := failure.AsRejection(err)
	if !ok {
		t.Fatalf("error = %v, want rejection", err)
	}
	if rej.Reason != failure.ReasonInfoUnavailable {
		t.Fatalf("reason = %s", rej.Reason)
	}
	if !strings.HasPrefix(rej.Message, "Failed to fetch video info after multiple attempts:") {
		t.Fatalf("message = %q", rej.Message)
	}
	// 6 client sets x 2 formats, then the plain attempt.
	if len(runner.calls) != 13 {
		t.Fatalf("calls = %d, want 13", len(runner.calls))
	}
	if hasArg(runner.calls[12], "--extractor-args") {
		t.Fatal("plain attempt must not pin a player client")
	}
}

func TestDownloadRejectsLongVideoBeforeTransfer(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if hasArg(args, "--dump-single-json") {
			return commandResult{Stdout: `{"title":"Long","duration":7300}`}, nil
		}
		t.Errorf("unexpected download call %v", args)
		return commandResult{}, nil
	}}
	c := newTestYtDlp(runner)

	_, _, err := c.Download(context.Background(), "https://youtu.be/x", t.TempDir(), 3600)
	rej, ok := failure.AsRejection(err)
	if !ok || rej.Reason != failure.ReasonTooLong {
		t.Fatalf("error = %v, want too_long rejection", err)
	}
	if rej.Message != "Video is too long (121 min). Maximum allowed is 60 min." {
		t.Fatalf("message = %q", rej.Message)
	}
}

func TestDownloadWritesSourceFile(t *testing.T) {
	dir := t.TempDir()
	downloads := 0
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if hasArg(args, "--dump-single-json") {
			return commandResult{Stdout: `{"title":"Short","duration":95.9}`}, nil
		}
		downloads++
		if downloads == 1 {
			return failed("ERROR: Requested format is not available")
		}
		if argValue(args, "--geo-bypass-country") != "US" {
			t.Errorf("geo bypass missing: %v", args)
		}
		out := argValue(args, "-o")
		mustWriteFile(t, strings.Replace(out, "%(ext)s", "m4a", 1), "audio")
		return commandResult{}, nil
	}}
	c := newTestYtDlp(runner)

	path, duration, err := c.Download(context.Background(), "https://youtu.be/x", dir, 3600)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "source.m4a") {
		t.Fatalf("path = %q", path)
	}
	if duration != 95 {
		t.Fatalf("duration = %d, want 95", duration)
	}
	if downloads != 2 {
		t.Fatalf("downloads = %d, want 2", downloads)
	}
}

func TestDownloadClassifiesForbidden(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if hasArg(args, "--dump-single-json") {
			return commandResult{Stdout: `{"title":"Blocked","duration":60}`}, nil
		}
		return failed("WARNING: retrying\nERROR: unable to download video data: HTTP Error 403: Forbidden\n")
	}}
	c := newTestYtDlp(runner)

	_, _, err := c.Download(context.Background(), "https://youtu.be/x", t.TempDir(), 3600)
	rej, ok := failure.AsRejection(err)
	if !ok || rej.Reason != failure.ReasonForbidden {
		t.Fatalf("error = %v, want forbidden rejection", err)
	}
	if !strings.Contains(rej.Message, "YTDLP_COOKIES_FILE") {
		t.Fatalf("message = %q", rej.Message)
	}
}

func TestDownloadReportsLastErrorAsTransient(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if hasArg(args, "--dump-single-json") {
			return commandResult{Stdout: `{"title":"Flaky","duration":60}`}, nil
		}
		return failed("ERROR: connection reset")
	}}
	c := newTestYtDlp(runner)

	_, _, err := c.Download(context.Background(), "https://youtu.be/x", t.TempDir(), 3600)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := failure.AsRejection(err); ok {
		t.Fatalf("network failure must not be a rejection: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Audio download failed after 5 attempts. Last error:") {
		t.Fatalf("error = %q", err.Error())
	}
	if !failure.IsRetryable(failure.Classify("fetch", err)) {
		t.Fatal("download failure should be retryable")
	}
}

func TestForbiddenNeedsErrorPrefix(t *testing.T) {
	if forbidden(commandResult{ExitCode: 1, Stderr: "WARNING: HTTP Error 403 on fragment 3"}) {
		t.Fatal("warning lines must not count")
	}
	if forbidden(commandResult{ExitCode: 0, Stderr: "ERROR: HTTP Error 403"}) {
		t.Fatal("successful runs must not count")
	}
}

func TestFFmpegConverterArgs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "audio.wav")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		mustWriteFile(t, args[len(args)-1], "RIFF")
		return commandResult{}, nil
	}}
	c := &FFmpegConverter{binary: "ffmpeg", runner: runner}

	if err := c.ToWAV(context.Background(), "in.m4a", out); err != nil {
		t.Fatalf("ToWAV: %v", err)
	}
	args := runner.calls[0][1:]
	if argValue(args, "-ar") != "16000" || argValue(args, "-ac") != "1" || argValue(args, "-i") != "in.m4a" {
		t.Fatalf("args = %v", args)
	}
}

func TestFFmpegConverterFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return failed("Invalid data found when processing input")
	}}
	c := &FFmpegConverter{binary: "ffmpeg", runner: runner}

	err := c.ToWAV(context.Background(), "in.m4a", filepath.Join(t.TempDir(), "a.wav"))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 1 {
		t.Fatalf("error = %v, want CommandError", err)
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("stderr missing from %q", err.Error())
	}
}

func TestWAVDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.wav")
	if err := writeSilence(path, 3); err != nil {
		t.Fatalf("writeSilence: %v", err)
	}
	got, err := WAVDuration(path)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if got != 3 {
		t.Fatalf("duration = %v, want 3", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.wav")
	mustWriteFile(t, bad, "not a wav file at all")
	if _, err := WAVDuration(bad); err == nil {
		t.Fatal("expected error for non-wav input")
	}
}

func TestParseSegmentLine(t *testing.T) {
	seg, ok := parseSegmentLine("[00:01:02.500 --> 00:01:05.250]   Hello there")
	if !ok {
		t.Fatal("line not parsed")
	}
	if seg.Start != 62.5 || seg.End != 65.25 || seg.Text != "Hello there" {
		t.Fatalf("segment = %+v", seg)
	}
	if _, ok := parseSegmentLine("whisper_init_from_file: loading model"); ok {
		t.Fatal("log line parsed as segment")
	}
}

type recordingSink struct {
	processed []float64
	totals    []float64
	segments  []int
}

func (s *recordingSink) Observe(processedSec, totalSec float64, segments int) {
	s.processed = append(s.processed, processedSec)
	s.totals = append(s.totals, totalSec)
	s.segments = append(s.segments, segments)
}

const whisperJSON = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 1500}, "text": " Hello"},
    {"offsets": {"from": 1500, "to": 2000}, "text": "  "},
    {"offsets": {"from": 2000, "to": 3000}, "text": " world"}
  ]
}`

func newTestModel(t *testing.T) *WhisperModel {
	t.Helper()
	dir := t.TempDir()
	m := &WhisperModel{Dir: dir, Size: "small", ComputeType: "int8", log: zap.NewNop()}
	mustWriteFile(t, m.Path(), "ggml")
	return m
}

func TestWhisperEngineTranscribes(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audio.wav")
	if err := writeSilence(wav, 3); err != nil {
		t.Fatalf("writeSilence: %v", err)
	}

	runner := &fakeRunner{stream: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
		onLine("whisper_full: processing")
		onLine("[00:00:00.000 --> 00:00:01.500]   Hello")
		onLine("[00:00:02.000 --> 00:00:03.000]   world")
		mustWriteFile(t, argValue(args, "-of")+".json", whisperJSON)
		return commandResult{}, nil
	}}
	cfg := &config.WhisperConfig{Binary: "whisper-cli", Device: "cpu", Threads: 2}
	e := newWhisperEngine(cfg, newTestModel(t), runner, zap.NewNop())
	sink := &recordingSink{}

	tr, err := e.Transcribe(context.Background(), wav, sink)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hello world" || tr.Language != "en" || len(tr.Segments) != 3 {
		t.Fatalf("transcription = %+v", tr)
	}
	if tr.Segments[2].Start != 2 || tr.Segments[2].End != 3 {
		t.Fatalf("segment = %+v", tr.Segments[2])
	}
	if len(sink.processed) != 2 || sink.processed[1] != 3 || sink.totals[0] != 3 || sink.segments[1] != 2 {
		t.Fatalf("sink = %+v", sink)
	}

	// warmup, then the transcription itself
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(runner.calls))
	}
	args := runner.calls[1][1:]
	if argValue(args, "-bs") != "5" || argValue(args, "-l") != "auto" || !hasArg(args, "-ng") {
		t.Fatalf("args = %v", args)
	}
	if _, err := os.Stat(filepath.Join(dir, "audio.json")); !os.IsNotExist(err) {
		t.Fatal("json output should be removed")
	}
}

func TestWhisperEngineFallsBackToCPU(t *testing.T) {
	warmups := 0
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		warmups++
		if !hasArg(args, "-ng") {
			return failed("ggml_cuda_init: failed to initialize CUDA")
		}
		return commandResult{}, nil
	}}
	cfg := &config.WhisperConfig{Binary: "whisper-cli", Device: "cuda"}
	e := newWhisperEngine(cfg, newTestModel(t), runner, zap.NewNop())

	if err := e.Preload(); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if err := e.Preload(); err != nil {
		t.Fatalf("second Preload: %v", err)
	}
	if warmups != 2 {
		t.Fatalf("warmups = %d, want 2 (gpu then cpu, once)", warmups)
	}
	h, _ := e.handle()
	if !h.cpuOnly {
		t.Fatal("engine should have fallen back to cpu")
	}
}

func TestWhisperEngineRetriesFailedInit(t *testing.T) {
	warmups := 0
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		warmups++
		if warmups == 1 {
			return failed("whisper_init_from_file: failed to load model")
		}
		return commandResult{}, nil
	}}
	cfg := &config.WhisperConfig{Binary: "whisper-cli", Device: "cpu"}
	e := newWhisperEngine(cfg, newTestModel(t), runner, zap.NewNop())

	if err := e.Preload(); err == nil {
		t.Fatal("expected first Preload to fail")
	}
	if err := e.Preload(); err != nil {
		t.Fatalf("second Preload: %v", err)
	}
	if err := e.Preload(); err != nil {
		t.Fatalf("third Preload: %v", err)
	}
	if warmups != 2 {
		t.Fatalf("warmups = %d, want 2 (failed, then loaded once)", warmups)
	}
}

func TestWhisperEngineUnknownLanguage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	mustWriteFile(t, path, `{"result":{"language":""},"transcription":[]}`)
	tr, err := readWhisperJSON(path)
	if err != nil {
		t.Fatalf("readWhisperJSON: %v", err)
	}
	if tr.Language != "unknown" || tr.Text != "" || tr.Segments == nil {
		t.Fatalf("transcription = %+v", tr)
	}
}

func TestWhisperModelFileName(t *testing.T) {
	cases := []struct {
		size, compute, want string
	}{
		{"small", "int8", "ggml-small-q8_0.bin"},
		{"base", "float16", "ggml-base.bin"},
		{"medium", "q5_1", "ggml-medium-q5_1.bin"},
		{"/models/custom.bin", "int8", "custom.bin"},
	}
	for _, tc := range cases {
		m := &WhisperModel{Size: tc.size, ComputeType: tc.compute}
		if got := m.FileName(); got != tc.want {
			t.Errorf("FileName(%q,%q) = %q, want %q", tc.size, tc.compute, got, tc.want)
		}
	}
}

func TestWhisperModelDownloadsOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/ggml-tiny.bin" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("model-bytes"))
	}))
	defer srv.Close()

	m := &WhisperModel{
		Dir:     t.TempDir(),
		Size:    "tiny",
		BaseURL: srv.URL,
		client:  srv.Client(),
		log:     zap.NewNop(),
	}
	path, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "model-bytes" {
		t.Fatalf("model file = %q, %v", data, err)
	}
	if _, err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestWhisperModelDownloadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := &WhisperModel{Dir: t.TempDir(), Size: "tiny", BaseURL: srv.URL, client: srv.Client(), log: zap.NewNop()}
	if _, err := m.Ensure(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v, want status 404", err)
	}
	if fileExists(m.Path()) {
		t.Fatal("no model file should remain")
	}
}
