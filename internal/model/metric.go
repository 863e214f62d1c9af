package model

import "time"

// MetricName identifies a catalog metric.
type MetricName string

const (
	MetricClosedRevenue        MetricName = "closed_revenue"
	MetricOpenPipelineValue    MetricName = "open_pipeline_value"
	MetricActiveWorkOrders     MetricName = "active_work_orders"
	MetricExecutionBacklog     MetricName = "execution_backlog"
	MetricConversionRate       MetricName = "conversion_rate"
	MetricRevenuePerProject    MetricName = "revenue_per_project"
	MetricWinRate              MetricName = "win_rate"
	MetricUnbilledBacklogValue MetricName = "unbilled_backlog_value"
	MetricPipelineClosing      MetricName = "pipeline_closing"
	MetricRealizationRate      MetricName = "realization_rate"
	MetricCompletedWorkOrders  MetricName = "completed_work_orders"
)

// Unit is the unit of a metric value.
type Unit string

const (
	UnitCurrency Unit = "currency"
	UnitCount    Unit = "count"
	UnitPercent  Unit = "percent"
)

// GroupBy selects the breakdown key of a metric.
type GroupBy string

const (
	GroupNone    GroupBy = ""
	GroupSector  GroupBy = "sector"
	GroupMonth   GroupBy = "month"
	GroupQuarter GroupBy = "quarter"
	GroupStatus  GroupBy = "status"
)

// Window is an inclusive calendar range. The zero Window covers all time.
type Window struct {
	Label string    `json:"label,omitempty"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// IsAllTime reports whether the window is unbounded.
func (w Window) IsAllTime() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether the calendar date d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	if w.IsAllTime() {
		return true
	}
	if !w.Start.IsZero() && d.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && d.After(w.End) {
		return false
	}
	return true
}

// Bucket is one group of a metric breakdown.
type Bucket struct {
	Key    string  `json:"key"`
	Value  float64 `json:"value"`
	Count  int     `json:"count"`
	NoData bool    `json:"no_data,omitempty"`
}

// MetricResult is the value of a metric over a window, with the caveats of
// every field it touched.
type MetricResult struct {
	Name      MetricName         `json:"name"`
	Unit      Unit               `json:"unit"`
	Value     float64            `json:"value"`
	NoData    bool               `json:"no_data,omitempty"`
	Count     int                `json:"count"`
	Window    Window             `json:"window"`
	GroupBy   GroupBy            `json:"group_by,omitempty"`
	Breakdown []Bucket           `json:"breakdown,omitempty"`
	Details   map[string]float64 `json:"details,omitempty"`
	Caveats   []FieldCaveat      `json:"caveats,omitempty"`
}
