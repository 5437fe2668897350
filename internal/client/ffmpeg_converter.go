package client

import (
	"context"
	"fmt"
	"os"

	"github.com/youtubelmm/api/internal/config"
)

// FFmpegConverter turns downloaded media into 16 kHz mono PCM for the speech engine.
type FFmpegConverter struct {
	binary string
	runner commandRunner
}

func NewFFmpegConverter(cfg *config.FFmpegConfig) *FFmpegConverter {
	return &FFmpegConverter{binary: cfg.Binary, runner: &execRunner{}}
}

func (c *FFmpegConverter) ToWAV(ctx context.Context, in, out string) error {
	res, err := c.runner.Run(ctx, c.binary, ffmpegArgs(in, out)...)
	if err != nil {
		return fmt.Errorf("ffmpeg conversion failed: %w", commandError(c.binary, res, err))
	}
	st, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("ffmpeg output missing: %w", err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("ffmpeg output is empty: %s", out)
	}
	return nil
}

func ffmpegArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	}
}
