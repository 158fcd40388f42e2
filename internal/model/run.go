package model

import "time"

// RunStatus marks whether a pipeline invocation completed.
type RunStatus string

// Run status constants.
const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// RunRecord captures one pipeline invocation's inputs and outputs. Records
// are append-only; the most recent successful record's timestamp is the
// next run's ingestion lower bound.
type RunRecord struct {
	StartedAt      time.Time
	Status         RunStatus
	Error          string
	ID             int64
	ItemsFound     int
	ItemsFetched   int
	ItemsAnalyzed  int
	HighRatedCount int
}
