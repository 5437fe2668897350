package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
)

const (
	unknownLanguage = "unknown"
	engineInitLimit = 30 * time.Minute
)

// whisper.cpp prints each decoded segment as "[hh:mm:ss.mmm --> hh:mm:ss.mmm]  text".
var segmentLine = regexp.MustCompile(`^\[(\d+):(\d{2}):(\d{2})[.,](\d{3}) --> (\d+):(\d{2}):(\d{2})[.,](\d{3})\]\s*(.*)$`)

// whisperHandle is the initialized engine state shared by every transcription.
type whisperHandle struct {
	modelPath string
	cpuOnly   bool
}

// WhisperEngine transcribes audio with the whisper.cpp CLI. The model is
// resolved and warmed up on first use and kept for the process; a failed
// initialization is retried by the next caller. Transcriptions run one at a
// time.
type WhisperEngine struct {
	binary   string
	device   string
	threads  int
	beamSize int
	model    *WhisperModel
	runner   commandRunner
	log      *zap.Logger

	initMu sync.Mutex
	loaded *whisperHandle
	mu     sync.Mutex
}

func NewWhisperEngine(cfg *config.WhisperConfig, m *WhisperModel, log *zap.Logger) *WhisperEngine {
	return newWhisperEngine(cfg, m, &execRunner{}, log)
}

func newWhisperEngine(cfg *config.WhisperConfig, m *WhisperModel, runner commandRunner, log *zap.Logger) *WhisperEngine {
	beam := cfg.BeamSize
	if beam <= 0 {
		beam = 5
	}
	return &WhisperEngine{
		binary:   cfg.Binary,
		device:   strings.ToLower(cfg.Device),
		threads:  cfg.Threads,
		beamSize: beam,
		model:    m,
		runner:   runner,
		log:      log,
	}
}

func (e *WhisperEngine) handle() (*whisperHandle, error) {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.loaded != nil {
		return e.loaded, nil
	}
	h, err := e.load()
	if err != nil {
		return nil, err
	}
	e.loaded = h
	return h, nil
}

// Preload initializes the engine ahead of the first task.
func (e *WhisperEngine) Preload() error {
	_, err := e.handle()
	if err == nil {
		e.log.Info("Whisper model is ready")
	}
	return err
}

func (e *WhisperEngine) load() (*whisperHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), engineInitLimit)
	defer cancel()

	e.log.Info("Loading Whisper model",
		zap.String("model", e.model.FileName()),
		zap.String("device", e.device))

	path, err := e.model.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "whisper-warmup-*")
	if err != nil {
		return nil, fmt.Errorf("create warmup dir: %w", err)
	}
	defer os.RemoveAll(dir)
	wav := filepath.Join(dir, "silence.wav")
	if err := writeSilence(wav, 1); err != nil {
		return nil, fmt.Errorf("write warmup audio: %w", err)
	}

	h := &whisperHandle{modelPath: path, cpuOnly: e.device == "" || e.device == "cpu"}
	if err := e.warmup(ctx, h, wav); err != nil {
		if h.cpuOnly {
			return nil, err
		}
		e.log.Warn("Failed to initialize Whisper on requested device, fallback to CPU",
			zap.String("requested_device", e.device), zap.Error(err))
		h.cpuOnly = true
		if err := e.warmup(ctx, h, wav); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (e *WhisperEngine) warmup(ctx context.Context, h *whisperHandle, wav string) error {
	args := e.args(h, wav, strings.TrimSuffix(wav, filepath.Ext(wav)))
	res, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return fmt.Errorf("whisper warmup: %w", commandError(e.binary, res, err))
	}
	return nil
}

func (e *WhisperEngine) args(h *whisperHandle, wav, outBase string) []string {
	args := []string{
		"-m", h.modelPath,
		"-f", wav,
		"-l", "auto",
		"-bs", strconv.Itoa(e.beamSize),
		"-oj",
		"-of", outBase,
		"-np",
	}
	if e.threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.threads))
	}
	if h.cpuOnly {
		args = append(args, "-ng")
	}
	return args
}

// Transcribe decodes wavPath, reporting each printed segment to sink.
func (e *WhisperEngine) Transcribe(ctx context.Context, wavPath string, sink pipeline.ProgressSink) (model.Transcription, error) {
	h, err := e.handle()
	if err != nil {
		return model.Transcription{}, fmt.Errorf("whisper init: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	total, err := WAVDuration(wavPath)
	if err != nil {
		e.log.Warn("Could not read audio duration", zap.String("path", wavPath), zap.Error(err))
	}

	started := time.Now()
	outBase := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	seen := 0
	onLine := func(line string) {
		seg, ok := parseSegmentLine(line)
		if !ok {
			return
		}
		seen++
		if sink != nil {
			sink.Observe(seg.End, total, seen)
		}
	}

	res, err := e.runner.Stream(ctx, onLine, e.binary, e.args(h, wavPath, outBase)...)
	if err != nil {
		return model.Transcription{}, fmt.Errorf("whisper transcription failed: %w", commandError(e.binary, res, err))
	}

	jsonPath := outBase + ".json"
	tr, err := readWhisperJSON(jsonPath)
	if err != nil {
		return model.Transcription{}, err
	}
	_ = os.Remove(jsonPath)

	e.log.Info("ASR completed",
		zap.String("audio_path", wavPath),
		zap.String("language", tr.Language),
		zap.Int("segments", len(tr.Segments)),
		zap.Int("elapsed_sec", int(time.Since(started).Seconds())),
		zap.Int("audio_duration_sec", int(total)))
	return tr, nil
}

func parseSegmentLine(line string) (model.Segment, bool) {
	m := segmentLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return model.Segment{}, false
	}
	return model.Segment{
		Start: clockSeconds(m[1], m[2], m[3], m[4]),
		End:   clockSeconds(m[5], m[6], m[7], m[8]),
		Text:  strings.TrimSpace(m[9]),
	}, true
}

func clockSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	milli, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(milli)/1000
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func readWhisperJSON(path string) (model.Transcription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Transcription{}, fmt.Errorf("read whisper output: %w", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Transcription{}, fmt.Errorf("decode whisper output: %w", err)
	}

	segments := make([]model.Segment, 0, len(out.Transcription))
	parts := make([]string, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		segments = append(segments, model.Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  text,
		})
		if text != "" {
			parts = append(parts, text)
		}
	}

	lang := strings.TrimSpace(out.Result.Language)
	if lang == "" || lang == "auto" {
		lang = unknownLanguage
	}
	return model.Transcription{
		Text:     strings.Join(parts, " "),
		Language: lang,
		Segments: segments,
	}, nil
}
