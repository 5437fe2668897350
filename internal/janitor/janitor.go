// Package janitor removes task scratch directories left behind by crashed or
// abandoned runs.
package janitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/pipeline"
)

const defaultSchedule = "@hourly"

type Janitor struct {
	workDir  pipeline.WorkDir
	maxAge   time.Duration
	schedule string
	now      func() time.Time
	log      *zap.Logger
}

func New(workDir pipeline.WorkDir, schedule string, maxAge time.Duration, log *zap.Logger) *Janitor {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Janitor{
		workDir:  workDir,
		maxAge:   maxAge,
		schedule: schedule,
		now:      time.Now,
		log:      log,
	}
}

// Sweep deletes every task directory older than the configured age and
// returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	stale, err := j.workDir.Stale(j.now().Add(-j.maxAge))
	if err != nil {
		return 0, fmt.Errorf("list work dirs: %w", err)
	}
	removed := 0
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn("Failed to remove stale work dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info("Removed stale work dirs", zap.Int("count", removed))
	}
	return removed, nil
}

// Run sweeps on the cron schedule until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(); err != nil {
			j.log.Error("Janitor sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
