package export

import (
	"strings"
	"testing"

	"github.com/youtubelmm/api/internal/model"
)

func TestSRTTimestamp(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3661.25, "01:01:01,250"},
		{-5, "00:00:00,000"},
		{0, "00:00:00,000"},
		{59.9999, "00:00:59,999"},
		{1.001, "00:00:01,001"},
		{36000, "10:00:00,000"},
	}
	for _, tc := range cases {
		if got := SRTTimestamp(tc.in); got != tc.want {
			t.Errorf("SRTTimestamp(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSRTEmpty(t *testing.T) {
	if got := SRT(nil); got != "" {
		t.Fatalf("SRT(nil) = %q, want empty", got)
	}
	if got := SRT([]model.Segment{{Start: 0, End: 1, Text: "  "}}); got != "" {
		t.Fatalf("SRT(blank) = %q, want empty", got)
	}
}

func TestSRTRenumbersAroundBlankSegments(t *testing.T) {
	segments := []model.Segment{
		{Start: 0, End: 1.5, Text: "Hello"},
		{Start: 1.5, End: 2, Text: "   "},
		{Start: 2, End: 3.25, Text: " world "},
	}

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:02,000 --> 00:00:03,250\nworld\n"
	if got := SRT(segments); got != want {
		t.Fatalf("SRT() =\n%q\nwant\n%q", got, want)
	}
}

func TestSRTSingleTrailingNewline(t *testing.T) {
	out := SRT([]model.Segment{{Start: 0, End: 1, Text: "only"}})
	if !strings.HasSuffix(out, "only\n") || strings.HasSuffix(out, "\n\n") {
		t.Fatalf("unexpected tail in %q", out)
	}
}

func TestMarkdownBuilders(t *testing.T) {
	if got, want := SummaryMarkdown(7, "  short  "), "# Summary\n\nTask ID: 7\n\nshort\n"; got != want {
		t.Errorf("SummaryMarkdown() = %q, want %q", got, want)
	}
	if got, want := OutlineMarkdown(7, "# Topic\n"), "# Lecture outline\n\nTask ID: 7\n\n# Topic\n"; got != want {
		t.Errorf("OutlineMarkdown() = %q, want %q", got, want)
	}
	if got, want := TranscriptMarkdown(7, " \n "), "# Full transcript\n\nTask ID: 7\n\n(Empty transcript)\n"; got != want {
		t.Errorf("TranscriptMarkdown() = %q, want %q", got, want)
	}
}

func TestDocumentsSkipsMissingSubtitles(t *testing.T) {
	result := &model.Result{TaskID: 3, TranscriptText: "hi", Summary: "s", Outline: "o"}
	docs := Documents(3, result)
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].FileName != "task_3_summary.md" || docs[2].FileName != "task_3_transcript.md" {
		t.Fatalf("unexpected file names %q, %q", docs[0].FileName, docs[2].FileName)
	}

	srt := "1\n00:00:00,000 --> 00:00:01,000\nhi\n"
	result.SubtitlesSRT = &srt
	docs = Documents(3, result)
	if len(docs) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(docs))
	}
	if docs[3].ContentType != ContentTypeSubRip || docs[3].FileName != "task_3_subtitles.srt" {
		t.Fatalf("unexpected subtitles document %+v", docs[3])
	}
}
