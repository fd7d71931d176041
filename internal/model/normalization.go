package model

import "time"

// RunStatus tracks the lifecycle of a batch normalization run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// NormalizationStats aggregates per-contact outcomes of a batch run.
type NormalizationStats struct {
	Processed int `json:"processed"`
	Applied   int `json:"applied"`
	Review    int `json:"review"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// NormalizationRun is the bookkeeping record for one contact
// normalization batch.
type NormalizationRun struct {
	ID         string             `json:"id"`
	Status     RunStatus          `json:"status"`
	Stats      NormalizationStats `json:"stats"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}
