package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/youtubelmm/api/internal/model"
)

// SRT encodes segments as a SubRip document. Segments with blank text are
// skipped and do not consume an index.
func SRT(segments []model.Segment) string {
	if len(segments) == 0 {
		return ""
	}

	var b strings.Builder
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index++
		b.WriteString(strconv.Itoa(index))
		b.WriteByte('\n')
		b.WriteString(SRTTimestamp(seg.Start))
		b.WriteString(" --> ")
		b.WriteString(SRTTimestamp(seg.End))
		b.WriteByte('\n')
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	out := strings.TrimRight(b.String(), " \t\r\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// SRTTimestamp formats seconds as HH:MM:SS,mmm. Negative input clamps to zero
// and sub-millisecond precision is truncated.
func SRTTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	totalMs := int64(math.Floor(seconds*1000 + 1e-6))
	hours := totalMs / 3_600_000
	minutes := (totalMs % 3_600_000) / 60_000
	secs := (totalMs % 60_000) / 1000
	millis := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
