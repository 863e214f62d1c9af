// Package summary assembles the fixed leadership update from a dataset.
package summary

import (
	"fmt"

	"github.com/sells-group/bi-agent/internal/metrics"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
)

// Assembler builds StructuredSummary values. It never reads the clock:
// the reporting date is the dataset's AsOf.
type Assembler struct {
	policy  *policy.Policy
	metrics *metrics.Engine
}

// New returns an Assembler.
func New(p *policy.Policy, m *metrics.Engine) *Assembler {
	return &Assembler{policy: p, metrics: m}
}

// Assemble computes the fixed metric set. A *model.DataShapeError from any
// required metric is returned as is; the optional pipeline-closing and
// unbilled-backlog figures are left out when their fields are unbound.
func (a *Assembler) Assemble(data model.Dataset) (model.StructuredSummary, error) {
	fiscal := a.policy.FiscalYearStartMonth
	quarter := metrics.QuarterWindow(data.AsOf, fiscal)
	all := model.Window{}

	s := model.StructuredSummary{
		Title:   fmt.Sprintf("Leadership Update: %s", quarter.Label),
		AsOf:    data.AsOf,
		Quarter: quarter,
	}

	required := []struct {
		dst    *model.MetricResult
		name   model.MetricName
		window model.Window
		by     model.GroupBy
	}{
		{&s.OpenPipeline, model.MetricOpenPipelineValue, all, model.GroupSector},
		{&s.ClosedRevenue, model.MetricClosedRevenue, quarter, model.GroupNone},
		{&s.ConversionRate, model.MetricConversionRate, all, model.GroupNone},
		{&s.WinRate, model.MetricWinRate, all, model.GroupNone},
		{&s.ActiveWorkOrders, model.MetricActiveWorkOrders, all, model.GroupNone},
		{&s.Backlog, model.MetricExecutionBacklog, all, model.GroupNone},
	}
	for _, r := range required {
		res, err := a.metrics.Compute(r.name, data, r.window, r.by)
		if err != nil {
			return model.StructuredSummary{}, err
		}
		*r.dst = res
	}

	var err error
	if s.PipelineClosing, err = a.optional(model.MetricPipelineClosing, data, quarter); err != nil {
		return model.StructuredSummary{}, err
	}
	if s.UnbilledBacklog, err = a.optional(model.MetricUnbilledBacklogValue, data, all); err != nil {
		return model.StructuredSummary{}, err
	}

	s.SectorShare = sectorShare(s.OpenPipeline)
	s.Risk, s.RiskRatio = Risk(s.Backlog.Value, s.ActiveWorkOrders.Value, a.policy.RiskHighRatio, a.policy.RiskMediumRatio)

	counts := data.Links.CountByConfidence()
	s.Links = model.LinkStats{
		Exact:             counts[model.ConfidenceExact],
		Fallback:          counts[model.ConfidenceFallback],
		UnlinkedExecution: len(data.Links.UnlinkedExecution),
		UnlinkedPipeline:  len(data.Links.UnlinkedPipeline),
	}
	s.Caveats = data.Caveats.Worst(a.policy.CaveatLimit)
	s.Excluded = map[model.Collection]int{
		model.CollectionPipeline:  len(data.Pipeline.Excluded),
		model.CollectionExecution: len(data.Execution.Excluded),
	}
	return s, nil
}

func (a *Assembler) optional(name model.MetricName, data model.Dataset, w model.Window) (*model.MetricResult, error) {
	res, err := a.metrics.Compute(name, data, w, model.GroupNone)
	if err != nil {
		if _, ok := model.AsDataShapeError(err); ok {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// Risk labels operational load from the backlog-to-active ratio. With no
// active orders any backlog is High.
func Risk(backlog, active, high, medium float64) (model.RiskLabel, float64) {
	if active == 0 {
		if backlog > 0 {
			return model.RiskHigh, 0
		}
		return model.RiskLow, 0
	}
	ratio := backlog / active
	switch {
	case ratio > high:
		return model.RiskHigh, ratio
	case ratio > medium:
		return model.RiskMedium, ratio
	default:
		return model.RiskLow, ratio
	}
}

func sectorShare(open model.MetricResult) []model.SectorShare {
	out := make([]model.SectorShare, 0, len(open.Breakdown))
	for _, b := range open.Breakdown {
		share := model.SectorShare{Sector: b.Key, Value: b.Value, Count: b.Count}
		if open.Value > 0 {
			share.Percent = b.Value / open.Value * 100
		}
		out = append(out, share)
	}
	return out
}
