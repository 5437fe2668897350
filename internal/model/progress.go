package model

import "time"

// ProgressSnapshot is an observational update emitted while transcribing.
type ProgressSnapshot struct {
	TaskID       int64     `json:"taskId"`
	Stage        string    `json:"stage"`
	ProcessedSec float64   `json:"processedSec"`
	TotalSec     float64   `json:"totalSec"`
	Percent      float64   `json:"percent"`
	Segments     int       `json:"segments"`
	ElapsedSec   float64   `json:"elapsedSec"`
	At           time.Time `json:"at"`
}

// StatusEvent announces a task status change to API subscribers.
type StatusEvent struct {
	TaskID int64      `json:"taskId"`
	Status TaskStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}
