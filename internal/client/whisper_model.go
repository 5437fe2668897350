package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/config"
)

const (
	defaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	modelLockRetry      = 500 * time.Millisecond
)

// WhisperModel locates the ggml model file for the configured size and
// downloads it on first use.
type WhisperModel struct {
	Dir         string
	Size        string
	ComputeType string
	BaseURL     string

	client *http.Client
	log    *zap.Logger
}

func NewWhisperModel(cfg *config.WhisperConfig, log *zap.Logger) *WhisperModel {
	return &WhisperModel{
		Dir:         cfg.ModelDir,
		Size:        cfg.ModelSize,
		ComputeType: cfg.ComputeType,
		BaseURL:     defaultModelBaseURL,
		client:      &http.Client{Timeout: 30 * time.Minute},
		log:         log,
	}
}

// FileName maps size and compute type onto whisper.cpp's published file names.
// A size that already names a .bin file is used as is.
func (m *WhisperModel) FileName() string {
	if strings.HasSuffix(m.Size, ".bin") {
		return filepath.Base(m.Size)
	}
	name := "ggml-" + m.Size
	switch strings.ToLower(m.ComputeType) {
	case "int8", "q8_0":
		name += "-q8_0"
	case "int5", "q5_0":
		name += "-q5_0"
	case "q5_1":
		name += "-q5_1"
	}
	return name + ".bin"
}

// Path is where the model file lives once downloaded.
func (m *WhisperModel) Path() string {
	if strings.HasSuffix(m.Size, ".bin") && strings.ContainsRune(m.Size, filepath.Separator) {
		return m.Size
	}
	return filepath.Join(m.Dir, m.FileName())
}

// Ensure returns the model path, downloading the file under an exclusive file
// lock when it is missing so concurrent workers fetch it once.
func (m *WhisperModel) Ensure(ctx context.Context) (string, error) {
	path := m.Path()
	if fileExists(path) {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, modelLockRetry)
	if err != nil {
		return "", fmt.Errorf("lock whisper model: %w", err)
	}
	if !locked {
		return "", errors.New("lock whisper model: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished the download while we waited.
	if fileExists(path) {
		return path, nil
	}
	if err := m.download(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

func (m *WhisperModel) download(ctx context.Context, path string) error {
	url := strings.TrimRight(m.BaseURL, "/") + "/" + m.FileName()
	m.log.Info("Downloading whisper model", zap.String("url", url), zap.String("path", path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download whisper model: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download whisper model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download whisper model: unexpected status %d", resp.StatusCode)
	}

	tempPath := path + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create model temp file: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write whisper model: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replace whisper model: %w", err)
	}

	m.log.Info("Whisper model downloaded", zap.String("path", path), zap.Int64("bytes", n))
	return nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir() && st.Size() > 0
}
