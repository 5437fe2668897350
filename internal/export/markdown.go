// Package export renders task results into the files delivered to requesters.
package export

import (
	"fmt"
	"strings"
)

const emptyTranscriptPlaceholder = "(Empty transcript)"

// Content types of the exported files.
const (
	ContentTypeMarkdown = "text/markdown"
	ContentTypeSubRip   = "application/x-subrip"
)

// SummaryMarkdown wraps the narrative summary.
func SummaryMarkdown(taskID int64, summary string) string {
	return markdown("Summary", taskID, summary)
}

// OutlineMarkdown wraps the lecture outline.
func OutlineMarkdown(taskID int64, outline string) string {
	return markdown("Lecture outline", taskID, outline)
}

// TranscriptMarkdown wraps the full transcript. An empty transcript is
// replaced by an explicit placeholder.
func TranscriptMarkdown(taskID int64, transcript string) string {
	body := strings.TrimSpace(transcript)
	if body == "" {
		body = emptyTranscriptPlaceholder
	}
	return markdown("Full transcript", taskID, body)
}

func markdown(title string, taskID int64, body string) string {
	return fmt.Sprintf("# %s\n\nTask ID: %d\n\n%s\n", title, taskID, strings.TrimSpace(body))
}
