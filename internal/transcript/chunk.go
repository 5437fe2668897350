// Package transcript groups speech segments into summarizable chunks and
// tracks transcription progress over processed media time.
package transcript

import (
	"strings"
	"time"

	"github.com/youtubelmm/api/internal/model"
)

// DefaultChunkSpan is the default media span of one chunk.
const DefaultChunkSpan = 10 * time.Minute

// Chunk is a contiguous run of segments.
type Chunk []model.Segment

// Start returns the start time of the first segment.
func (c Chunk) Start() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[0].Start
}

// End returns the end time of the last segment.
func (c Chunk) End() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].End
}

// Text joins the chunk's segment text.
func (c Chunk) Text() string {
	return JoinSegmentText(c)
}

// ChunkSegments greedily partitions segments into consecutive runs whose span,
// measured from the first segment's start to the last segment's end, stays
// within span. A segment that alone exceeds span still becomes its own chunk;
// segments are never dropped or split.
func ChunkSegments(segments []model.Segment, span time.Duration) []Chunk {
	if len(segments) == 0 {
		return nil
	}
	limit := span.Seconds()

	var (
		chunks  []Chunk
		current Chunk
	)
	runStart := segments[0].Start
	for _, seg := range segments {
		if len(current) > 0 && seg.End-runStart > limit {
			chunks = append(chunks, current)
			current = Chunk{seg}
			runStart = seg.Start
			continue
		}
		current = append(current, seg)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// ChunksOrWhole chunks segments, falling back to a single synthetic chunk that
// wraps the whole transcript when chunking yields nothing.
func ChunksOrWhole(text string, segments []model.Segment, span time.Duration) []Chunk {
	chunks := ChunkSegments(segments, span)
	if len(chunks) == 0 {
		return []Chunk{{{Start: 0, End: 0, Text: text}}}
	}
	return chunks
}

// JoinSegmentText trims each segment's text, drops the empty ones and joins
// the rest with single spaces.
func JoinSegmentText(segments []model.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
