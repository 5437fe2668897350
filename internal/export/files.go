package export

import (
	"fmt"

	"github.com/youtubelmm/api/internal/model"
)

// Kind names one exported artifact.
type Kind string

const (
	KindSummary    Kind = "summary"
	KindOutline    Kind = "outline"
	KindTranscript Kind = "transcript"
	KindSubtitles  Kind = "subtitles"
)

// ParseKind validates raw as an artifact kind.
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(raw); k {
	case KindSummary, KindOutline, KindTranscript, KindSubtitles:
		return k, true
	}
	return "", false
}

// FileName returns the delivered file name of kind for a task.
func FileName(taskID int64, kind Kind) string {
	if kind == KindSubtitles {
		return fmt.Sprintf("task_%d_subtitles.srt", taskID)
	}
	return fmt.Sprintf("task_%d_%s.md", taskID, kind)
}

// Document renders one artifact of a stored result. ok is false when the
// artifact does not exist, which only happens for subtitles.
func Document(taskID int64, result *model.Result, kind Kind) (model.Document, bool) {
	doc := model.Document{FileName: FileName(taskID, kind), ContentType: ContentTypeMarkdown}
	switch kind {
	case KindSummary:
		doc.Content = []byte(SummaryMarkdown(taskID, result.Summary))
		doc.Caption = fmt.Sprintf("Task %d: summary", taskID)
	case KindOutline:
		doc.Content = []byte(OutlineMarkdown(taskID, result.Outline))
	case KindTranscript:
		doc.Content = []byte(TranscriptMarkdown(taskID, result.TranscriptText))
	case KindSubtitles:
		if result.SubtitlesSRT == nil || *result.SubtitlesSRT == "" {
			return model.Document{}, false
		}
		doc.Content = []byte(*result.SubtitlesSRT)
		doc.ContentType = ContentTypeSubRip
	default:
		return model.Document{}, false
	}
	return doc, true
}

// Documents renders every artifact of a result in delivery order.
func Documents(taskID int64, result *model.Result) []model.Document {
	kinds := []Kind{KindSummary, KindOutline, KindTranscript, KindSubtitles}
	docs := make([]model.Document, 0, len(kinds))
	for _, kind := range kinds {
		if doc, ok := Document(taskID, result, kind); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}
