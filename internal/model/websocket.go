package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeStatus   = "status"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries a transcription progress snapshot
type WSProgressMessage struct {
	Type     string           `json:"type"`
	TaskID   int64            `json:"taskId"`
	Progress ProgressSnapshot `json:"progress"`
}

// WSStatusMessage announces a task status change
type WSStatusMessage struct {
	Type   string     `json:"type"`
	TaskID int64      `json:"taskId"`
	Status TaskStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}
