package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/failure"
	"github.com/youtubelmm/api/internal/model"
)

const (
	ytdlpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	metadataPause = 500 * time.Millisecond
	downloadPause = 2 * time.Second
)

// Player client sets tried while resolving metadata, ending with yt-dlp's default.
var metadataClients = [][]string{
	{"android", "web"},
	{"android"},
	{"web"},
	{"ios"},
	{"tv_embedded"},
	nil,
}

var metadataFormats = []string{"bestaudio/best", ""}

type downloadAttempt struct {
	Format  string
	Clients []string
}

// Ordered from preferred quality and client to the broadest fallback.
var downloadAttempts = []downloadAttempt{
	{Format: "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best", Clients: []string{"android"}},
	{Format: "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best", Clients: []string{"web"}},
	{Format: "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"},
	{Format: "bestaudio"},
	{Format: "bestaudio[protocol!=dash]/bestaudio", Clients: []string{"android", "web"}},
}

// YtDlpClient resolves and downloads YouTube audio with the yt-dlp binary.
type YtDlpClient struct {
	binary      string
	cookiesFile string
	runner      commandRunner
	pause       func(context.Context, time.Duration) error
	log         *zap.Logger
}

// NewYtDlpClient creates a yt-dlp backed video source.
func NewYtDlpClient(cfg *config.YtDlpConfig, log *zap.Logger) *YtDlpClient {
	return &YtDlpClient{
		binary:      cfg.Binary,
		cookiesFile: cfg.CookiesFile,
		runner:      &execRunner{},
		pause:       pause,
		log:         log,
	}
}

func (c *YtDlpClient) baseArgs() []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		"--retries", "10",
		"--fragment-retries", "10",
		"--skip-unavailable-fragments",
		"--user-agent", ytdlpUserAgent,
		"--add-header", "Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"--add-header", "Accept-Language:en-us,en;q=0.5",
		"--add-header", "Sec-Fetch-Mode:navigate",
	}
	if c.cookiesFile != "" {
		args = append(args, "--cookies", c.cookiesFile)
	}
	return args
}

func clientArgs(clients []string) []string {
	if len(clients) == 0 {
		return nil
	}
	return []string{"--extractor-args", "youtube:player_client=" + strings.Join(clients, ",")}
}

// FetchMetadata resolves video info, walking the player client and format fallbacks
// before one plain attempt.
func (c *YtDlpClient) FetchMetadata(ctx context.Context, url string) (model.VideoInfo, error) {
	var lastErr error
	for _, clients := range metadataClients {
		for _, format := range metadataFormats {
			args := append(c.baseArgs(), "--dump-single-json", "--skip-download")
			args = append(args, clientArgs(clients)...)
			if format != "" {
				args = append(args, "-f", format)
			}
			args = append(args, "--", url)

			info, err := c.dumpInfo(ctx, args)
			if err == nil && info.Title != "" {
				c.log.Info("Fetched video info",
					zap.String("title", info.Title),
					zap.Float64("duration", info.Duration))
				return info, nil
			}
			if err == nil {
				err = errors.New("video info has no title")
			}
			lastErr = err
			c.log.Warn("Failed to fetch info",
				zap.Error(err),
				zap.Strings("client", clients),
				zap.String("format", format))
			if err := c.pause(ctx, metadataPause); err != nil {
				return model.VideoInfo{}, err
			}
		}
	}

	info, err := c.dumpInfo(ctx, []string{"--quiet", "--no-warnings", "--no-playlist", "--dump-single-json", "--skip-download", "--", url})
	if err == nil {
		return info, nil
	}
	if ctx.Err() != nil {
		return model.VideoInfo{}, ctx.Err()
	}
	lastErr = err

	return model.VideoInfo{}, failure.Reject(failure.ReasonInfoUnavailable,
		"Failed to fetch video info after multiple attempts: %v", lastErr)
}

func (c *YtDlpClient) dumpInfo(ctx context.Context, args []string) (model.VideoInfo, error) {
	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return model.VideoInfo{}, commandError(c.binary, res, err)
	}
	var info model.VideoInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return model.VideoInfo{}, fmt.Errorf("decode video info: %w", err)
	}
	return info, nil
}

// Download fetches the best available audio into dir and returns its path and
// the video duration in seconds. Videos longer than maxDurationSec are rejected
// before any media is transferred.
func (c *YtDlpClient) Download(ctx context.Context, url, dir string, maxDurationSec int) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create work dir: %w", err)
	}
	info, err := c.FetchMetadata(ctx, url)
	if err != nil {
		return "", 0, err
	}

	duration := int(info.Duration)
	if maxDurationSec > 0 && duration > maxDurationSec {
		return "", 0, failure.Reject(failure.ReasonTooLong,
			"Video is too long (%d min). Maximum allowed is %d min.", duration/60, maxDurationSec/60)
	}

	output := filepath.Join(dir, "source.%(ext)s")
	var (
		lastErr    error
		lastResult commandResult
	)
	for i, attempt := range downloadAttempts {
		if i > 0 {
			if err := c.pause(ctx, downloadPause); err != nil {
				return "", 0, err
			}
		}
		c.log.Info("Attempting audio download",
			zap.Int("attempt", i+1),
			zap.String("format", attempt.Format),
			zap.Strings("client", attempt.Clients),
			zap.String("video_url", url))

		args := append(c.baseArgs(), "-f", attempt.Format, "-o", output, "--geo-bypass-country", "US")
		args = append(args, clientArgs(attempt.Clients)...)
		args = append(args, "--", url)

		res, err := c.runner.Run(ctx, c.binary, args...)
		if err != nil {
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			lastErr, lastResult = commandError(c.binary, res, err), res
			c.log.Warn("Audio download attempt failed",
				zap.Int("attempt", i+1),
				zap.String("format", attempt.Format),
				zap.Error(lastErr))
			continue
		}

		path, ok := findDownloaded(dir)
		if ok {
			c.log.Info("Audio downloaded", zap.Int("attempt", i+1), zap.String("path", path), zap.Int("duration", duration))
			return path, duration, nil
		}
		lastErr, lastResult = errors.New("file not found after download"), commandResult{}
		c.log.Warn("Audio download attempt failed", zap.Int("attempt", i+1), zap.Error(lastErr))
	}

	if forbidden(lastResult) {
		return "", 0, failure.Reject(failure.ReasonForbidden,
			"YouTube blocked direct download (HTTP 403). "+
				"Set YTDLP_COOKIES_FILE with browser-exported cookies (Netscape format).")
	}
	if strings.Contains(lastResult.Stderr, "Requested format is not available") {
		c.logFormats(ctx, url)
	}
	return "", 0, fmt.Errorf("Audio download failed after %d attempts. Last error: %w", len(downloadAttempts), lastErr)
}

// logFormats records the formats yt-dlp can see, for diagnosing format selection failures.
func (c *YtDlpClient) logFormats(ctx context.Context, url string) {
	args := append(c.baseArgs(), "--list-formats", "--", url)
	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return
	}
	c.log.Debug("Available formats", zap.String("video_url", url), zap.String("formats", res.Stdout))
}

// forbidden reports whether a failed run ended on an HTTP 403 from YouTube.
func forbidden(res commandResult) bool {
	if res.ExitCode == 0 {
		return false
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") && strings.Contains(line, "HTTP Error 403") {
			return true
		}
	}
	return false
}

func findDownloaded(dir string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, "source.*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".temp":
			continue
		}
		return m, true
	}
	return "", false
}
