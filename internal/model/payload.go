package model

// Envelope is carried by every stage payload. Skip short-circuits the rest of
// the chain: a stage receiving it does no work and forwards it unchanged.
type Envelope struct {
	TaskID int64  `json:"task_id"`
	RunID  string `json:"run_id,omitempty"`
	Skip   bool   `json:"skip,omitempty"`
}

// Skipped returns a copy of e marked to short-circuit.
func (e Envelope) Skipped() Envelope {
	e.Skip = true
	return e
}

// FetchOutput is produced by the fetch stage.
type FetchOutput struct {
	Envelope
	SourcePath  string `json:"source_path,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// TranscribeOutput is produced by the transcribe stage.
type TranscribeOutput struct {
	FetchOutput
	TranscriptText string    `json:"transcript_text"`
	Language       string    `json:"language,omitempty"`
	Segments       []Segment `json:"segments"`
}

// SummarizeOutput is produced by the summarize stage.
type SummarizeOutput struct {
	TranscribeOutput
	Summary string `json:"summary"`
	Outline string `json:"outline"`
}

// FinalizeOutput is produced by the finalize stage and ends the chain.
type FinalizeOutput struct {
	Envelope
	Status TaskStatus `json:"status,omitempty"`
}

// Env returns the envelope. It is promoted to every payload type.
func (e Envelope) Env() Envelope { return e }
