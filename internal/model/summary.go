package model

import "time"

// Dataset is a sanitized, linked snapshot of both collections.
type Dataset struct {
	Pipeline  CleanCollection `json:"pipeline"`
	Execution CleanCollection `json:"execution"`
	Links     LinkResult      `json:"links"`
	Caveats   CaveatReport    `json:"caveats"`
	AsOf      time.Time       `json:"as_of"`
}

// RiskLabel is the operational risk classification.
type RiskLabel string

const (
	RiskHigh   RiskLabel = "High"
	RiskMedium RiskLabel = "Medium"
	RiskLow    RiskLabel = "Low"
)

// SectorShare is one sector's slice of the open pipeline.
type SectorShare struct {
	Sector  string  `json:"sector"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// LinkStats summarizes linker coverage.
type LinkStats struct {
	Exact             int `json:"exact"`
	Fallback          int `json:"fallback"`
	UnlinkedExecution int `json:"unlinked_execution"`
	UnlinkedPipeline  int `json:"unlinked_pipeline"`
}

// StructuredSummary is the fixed leadership update. The pointer metrics
// are present only when the dataset binds the fields they need.
type StructuredSummary struct {
	Title            string             `json:"title"`
	AsOf             time.Time          `json:"as_of"`
	Quarter          Window             `json:"quarter"`
	OpenPipeline     MetricResult       `json:"open_pipeline"`
	PipelineClosing  *MetricResult      `json:"pipeline_closing,omitempty"`
	SectorShare      []SectorShare      `json:"sector_share"`
	ClosedRevenue    MetricResult       `json:"closed_revenue"`
	ConversionRate   MetricResult       `json:"conversion_rate"`
	WinRate          MetricResult       `json:"win_rate"`
	ActiveWorkOrders MetricResult       `json:"active_work_orders"`
	Backlog          MetricResult       `json:"backlog"`
	UnbilledBacklog  *MetricResult      `json:"unbilled_backlog,omitempty"`
	Risk             RiskLabel          `json:"risk"`
	RiskRatio        float64            `json:"risk_ratio"`
	Links            LinkStats          `json:"links"`
	Caveats          []FieldCaveat      `json:"caveats"`
	Excluded         map[Collection]int `json:"excluded"`
}
