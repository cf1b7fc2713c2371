package models

import "time"

// PipelineRun records one execution of a pipeline step
type PipelineRun struct {
	ID         string     `json:"id" db:"id"` // uuid
	Step       string     `json:"step" db:"step"`
	Status     string     `json:"status" db:"status"` // running, completed, failed
	Processed  int        `json:"processed" db:"processed"`
	Failed     int        `json:"failed" db:"failed"`
	Message    string     `json:"message,omitempty" db:"message"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
