// Package metrics computes the fixed catalog of business metrics over a
// sanitized, linked dataset.
package metrics

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
)

// Engine computes catalog metrics. It holds only the immutable policy and
// is safe for concurrent use.
type Engine struct {
	policy *policy.Policy
}

// New returns an Engine.
func New(p *policy.Policy) *Engine {
	return &Engine{policy: p}
}

// Catalog lists every metric in presentation order.
func Catalog() []model.MetricName {
	return []model.MetricName{
		model.MetricClosedRevenue,
		model.MetricOpenPipelineValue,
		model.MetricPipelineClosing,
		model.MetricWinRate,
		model.MetricConversionRate,
		model.MetricActiveWorkOrders,
		model.MetricExecutionBacklog,
		model.MetricUnbilledBacklogValue,
		model.MetricRevenuePerProject,
		model.MetricRealizationRate,
		model.MetricCompletedWorkOrders,
	}
}

// Compute evaluates one metric. A *model.DataShapeError is returned
// unwrapped when the dataset lacks a field the metric needs.
func (e *Engine) Compute(name model.MetricName, data model.Dataset, window model.Window, groupBy model.GroupBy) (model.MetricResult, error) {
	fn, ok := catalog[name]
	if !ok {
		return model.MetricResult{}, eris.Errorf("metrics: unknown metric %q", name)
	}

	asOf := data.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	c := &calc{
		policy: e.policy,
		data:   &data,
		window: window,
		by:     groupBy,
		asOf:   civil(asOf),
	}
	return fn(c)
}

// ComputeAll evaluates names in order, stopping at the first data shape
// error.
func (e *Engine) ComputeAll(names []model.MetricName, data model.Dataset, window model.Window, groupBy model.GroupBy) ([]model.MetricResult, error) {
	out := make([]model.MetricResult, 0, len(names))
	for _, n := range names {
		r, err := e.Compute(n, data, window, groupBy)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// calc carries the state of one metric evaluation.
type calc struct {
	policy *policy.Policy
	data   *model.Dataset
	window model.Window
	by     model.GroupBy
	asOf   time.Time
}

func (c *calc) result(name model.MetricName, unit model.Unit) model.MetricResult {
	return model.MetricResult{Name: name, Unit: unit, Window: c.window, GroupBy: c.by}
}

func (c *calc) groups() *groups {
	return newGroups(c.by, c.policy.FiscalYearStartMonth)
}

// inWindow places a record's date in the evaluation window. Undated
// records only count when the window is unbounded.
func (c *calc) inWindow(d time.Time, dated bool) bool {
	if c.window.IsAllTime() {
		return true
	}
	return dated && c.window.Contains(d)
}

// require fails when any of roles is unbound in coll.
func (c *calc) require(coll *model.CleanCollection, capability string, roles ...model.Role) error {
	if missing := coll.Schema.Missing(roles...); len(missing) > 0 {
		return model.NewDataShapeError(coll.Collection, capability, missing...)
	}
	return nil
}

// requireAny fails when none of roles is bound in coll.
func (c *calc) requireAny(coll *model.CleanCollection, capability string, roles ...model.Role) error {
	for _, r := range roles {
		if coll.Schema.FieldFor(r) != "" {
			return nil
		}
	}
	return model.NewDataShapeError(coll.Collection, capability, roles...)
}

// requireDates is requireAny, applied only when the window or the grouping
// needs a date.
func (c *calc) requireDates(coll *model.CleanCollection, capability string, roles ...model.Role) error {
	if c.window.IsAllTime() && c.by != model.GroupMonth && c.by != model.GroupQuarter {
		return nil
	}
	return c.requireAny(coll, capability, roles...)
}

func (c *calc) caveats(coll *model.CleanCollection, roles ...model.Role) []model.FieldCaveat {
	return c.data.Caveats.ForRoles(coll.Collection, coll.Schema, roles...)
}

// chain runs checks in order and returns the first failure.
func chain(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
