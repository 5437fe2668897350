package transcript

import (
	"time"

	"github.com/youtubelmm/api/internal/model"
)

// DefaultProgressInterval is how much processed media separates two snapshots.
const DefaultProgressInterval = 120 * time.Second

// ProgressMeter decides when a progress snapshot is due. Cadence follows
// processed media time, not wall time.
type ProgressMeter struct {
	interval float64
	total    float64
	started  time.Time
	next     float64
	now      func() time.Time
}

// NewProgressMeter creates a meter for audio of total seconds. Elapsed time
// counts from started, the moment transcription began.
func NewProgressMeter(total float64, interval time.Duration, started time.Time) *ProgressMeter {
	return newProgressMeter(total, interval, started, time.Now)
}

func newProgressMeter(total float64, interval time.Duration, started time.Time, now func() time.Time) *ProgressMeter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressMeter{
		interval: interval.Seconds(),
		total:    total,
		started:  started,
		next:     interval.Seconds(),
		now:      now,
	}
}

// Observe records that processedSec of media has been transcribed into
// segments segments. It returns a snapshot when the next mark was crossed;
// the mark then advances by one interval.
func (m *ProgressMeter) Observe(processedSec float64, segments int) (model.ProgressSnapshot, bool) {
	if processedSec < m.next {
		return model.ProgressSnapshot{}, false
	}
	m.next += m.interval

	percent := 0.0
	if m.total > 0 {
		percent = processedSec / m.total * 100
	}
	now := m.now()
	return model.ProgressSnapshot{
		Stage:        string(model.TaskStatusTranscribing),
		ProcessedSec: processedSec,
		TotalSec:     m.total,
		Percent:      percent,
		Segments:     segments,
		ElapsedSec:   now.Sub(m.started).Seconds(),
		At:           now,
	}, true
}
