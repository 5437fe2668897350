package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/transcript"
)

// progressSink turns engine observations into throttled snapshots.
type progressSink struct {
	taskID   int64
	interval time.Duration
	pub      ProgressPublisher
	log      *zap.Logger
	started  time.Time
	meter    *transcript.ProgressMeter
}

// newProgressSink starts the elapsed clock; create it right before the
// engine runs.
func newProgressSink(taskID int64, interval time.Duration, pub ProgressPublisher, log *zap.Logger) *progressSink {
	return &progressSink{taskID: taskID, interval: interval, pub: pub, log: log, started: time.Now()}
}

func (s *progressSink) Observe(processedSec, totalSec float64, segments int) {
	if s.meter == nil {
		s.meter = transcript.NewProgressMeter(totalSec, s.interval, s.started)
	}
	snap, ok := s.meter.Observe(processedSec, segments)
	if !ok {
		return
	}
	snap.TaskID = s.taskID

	s.log.Sugar().Infof("Transcription progress: task=%d %.1f%% (%ds/%ds), segments=%d, elapsed=%ds",
		s.taskID, snap.Percent, int(snap.ProcessedSec), int(snap.TotalSec), snap.Segments, int(snap.ElapsedSec))
	if s.pub != nil {
		s.pub.Publish(snap)
	}
}

var _ ProgressSink = (*progressSink)(nil)

// PublishFunc adapts a function to ProgressPublisher.
type PublishFunc func(model.ProgressSnapshot)

func (f PublishFunc) Publish(snap model.ProgressSnapshot) { f(snap) }
