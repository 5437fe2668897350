package model

// Segment is a timestamped span of transcript text, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is what the speech engine returns for one audio file.
type Transcription struct {
	Text     string
	Language string
	Segments []Segment
}

// VideoInfo is the metadata resolved before a download.
type VideoInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader,omitempty"`
	WebpageURL string  `json:"webpage_url,omitempty"`
	IsLive     bool    `json:"is_live,omitempty"`
	Extractor  string  `json:"extractor,omitempty"`
}

// Document is a file delivered to a requester.
type Document struct {
	FileName    string
	Content     []byte
	ContentType string
	Caption     string
}
