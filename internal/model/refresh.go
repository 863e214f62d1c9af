package model

import "time"

// RefreshStatus is the lifecycle state of a snapshot refresh.
type RefreshStatus string

const (
	RefreshRunning  RefreshStatus = "running"
	RefreshComplete RefreshStatus = "complete"
	RefreshFailed   RefreshStatus = "failed"
)

// Refresh records one fetch-sanitize-link cycle.
type Refresh struct {
	ID          string        `json:"id"`
	Status      RefreshStatus `json:"status"`
	Trigger     string        `json:"trigger"`
	Stats       *RefreshStats `json:"stats,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// RefreshStats is the outcome of a successful refresh.
type RefreshStats struct {
	PipelineRaw       int          `json:"pipeline_raw"`
	PipelineRetained  int          `json:"pipeline_retained"`
	ExecutionRaw      int          `json:"execution_raw"`
	ExecutionRetained int          `json:"execution_retained"`
	Links             LinkStats    `json:"links"`
	Caveats           CaveatReport `json:"caveats"`
	DurationMs        int64        `json:"duration_ms"`
}
