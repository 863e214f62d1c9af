package metrics

import (
	"math"

	"github.com/sells-group/bi-agent/internal/model"
)

var catalog = map[model.MetricName]func(*calc) (model.MetricResult, error){
	model.MetricClosedRevenue:        closedRevenue,
	model.MetricOpenPipelineValue:    openPipelineValue,
	model.MetricActiveWorkOrders:     activeWorkOrders,
	model.MetricExecutionBacklog:     executionBacklog,
	model.MetricConversionRate:       conversionRate,
	model.MetricRevenuePerProject:    revenuePerProject,
	model.MetricWinRate:              winRate,
	model.MetricUnbilledBacklogValue: unbilledBacklogValue,
	model.MetricPipelineClosing:      pipelineClosing,
	model.MetricRealizationRate:      realizationRate,
	model.MetricCompletedWorkOrders:  completedWorkOrders,
}

var (
	closeRoles = []model.Role{model.RoleCloseDate, model.RoleTentativeCloseDate}
	startRoles = []model.Role{model.RoleStartDate, model.RoleCreatedDate}
	ageRoles   = []model.Role{model.RoleCreatedDate, model.RoleStartDate}
	statusRole = []model.Role{model.RoleStatus, model.RoleStage}
)

// Probability bands of the open pipeline.
const (
	highProbability = 0.75
	midProbability  = 0.4
)

func closedRevenue(c *calc) (model.MetricResult, error) {
	pipe := &c.data.Pipeline
	const capability = "closed revenue"
	if err := chain(
		c.require(pipe, capability, model.RoleRevenue),
		c.requireAny(pipe, capability, statusRole...),
		c.requireDates(pipe, capability, closeRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricClosedRevenue, model.UnitCurrency)
	g := c.groups()
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		if rec.Status != model.StatusWon {
			continue
		}
		d, dated := pipe.DateOf(rec, closeRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		v, _ := pipe.NumberOf(rec, model.RoleRevenue)
		res.Value += v
		res.Count++
		g.add(rec, d, dated, v, 0, true)
	}
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(pipe, model.RoleRevenue, model.RoleStatus, model.RoleStage, model.RoleCloseDate, model.RoleTentativeCloseDate)
	return res, nil
}

func openPipelineValue(c *calc) (model.MetricResult, error) {
	return c.openPipeline(model.MetricOpenPipelineValue, c.window)
}

// pipelineClosing is the open pipeline expected to close inside the
// window, the current fiscal quarter when none is given.
func pipelineClosing(c *calc) (model.MetricResult, error) {
	w := c.window
	if w.IsAllTime() {
		w = QuarterWindow(c.asOf, c.policy.FiscalYearStartMonth)
	}
	if err := c.requireAny(&c.data.Pipeline, "pipeline closing", closeRoles...); err != nil {
		return model.MetricResult{}, err
	}
	return c.openPipeline(model.MetricPipelineClosing, w)
}

func (c *calc) openPipeline(name model.MetricName, w model.Window) (model.MetricResult, error) {
	pipe := &c.data.Pipeline
	capability := "open pipeline"
	saved := c.window
	c.window = w
	defer func() { c.window = saved }()

	if err := chain(
		c.require(pipe, capability, model.RoleRevenue),
		c.requireAny(pipe, capability, statusRole...),
		c.requireDates(pipe, capability, closeRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	weighted := pipe.Schema.Has(model.RoleProbability)
	res := c.result(name, model.UnitCurrency)
	g := c.groups()
	var plain, weightedSum, high, mid, low float64
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		if !model.StatusIn(rec.Status, c.policy.OpenPipelineStatuses) {
			continue
		}
		d, dated := pipe.DateOf(rec, closeRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		v, _ := pipe.NumberOf(rec, model.RoleRevenue)
		res.Count++
		plain += v

		contrib := v
		if weighted {
			p, _ := pipe.NumberOf(rec, model.RoleProbability)
			contrib = v * p
			weightedSum += contrib
			switch {
			case p >= highProbability:
				high += v
			case p >= midProbability:
				mid += v
			default:
				low += v
			}
		}
		g.add(rec, d, dated, contrib, 0, true)
	}

	res.Value = plain
	if weighted {
		res.Value = weightedSum
		res.Details = map[string]float64{
			"unweighted":       plain,
			"high_probability": high,
			"mid_probability":  mid,
			"low_probability":  low,
		}
	}
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(pipe, model.RoleRevenue, model.RoleProbability, model.RoleStatus, model.RoleStage, model.RoleCloseDate, model.RoleTentativeCloseDate)
	return res, nil
}

func activeWorkOrders(c *calc) (model.MetricResult, error) {
	exec := &c.data.Execution
	const capability = "active work orders"
	if err := chain(
		c.require(exec, capability, model.RoleStatus),
		c.requireDates(exec, capability, startRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricActiveWorkOrders, model.UnitCount)
	g := c.groups()
	for i := range exec.Records {
		rec := &exec.Records[i]
		if !c.active(exec, rec) {
			continue
		}
		d, dated := exec.DateOf(rec, startRoles...)
		res.Count++
		g.add(rec, d, dated, 1, 0, true)
	}
	res.Value = float64(res.Count)
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(exec, model.RoleStatus, model.RoleStartDate, model.RoleCreatedDate)
	return res, nil
}

// active reports whether a work order is active and starts in the window.
func (c *calc) active(exec *model.CleanCollection, rec *model.CleanRecord) bool {
	if !model.StatusIn(rec.Status, c.policy.ActiveWorkOrderStatuses) {
		return false
	}
	d, dated := exec.DateOf(rec, startRoles...)
	return c.inWindow(d, dated)
}

// executionBacklog counts work orders waiting longer than the backlog
// threshold. It is a point-in-time measure at AsOf and ignores the window.
func executionBacklog(c *calc) (model.MetricResult, error) {
	exec := &c.data.Execution
	const capability = "execution backlog"
	if err := chain(
		c.require(exec, capability, model.RoleStatus),
		c.requireAny(exec, capability, ageRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricExecutionBacklog, model.UnitCount)
	res.Window = model.Window{}
	threshold := float64(c.policy.BacklogAgeThresholdDays)
	g := c.groups()
	var undated, waiting int
	var oldest float64
	for i := range exec.Records {
		rec := &exec.Records[i]
		if !model.StatusIn(rec.Status, c.policy.BacklogStatuses) {
			continue
		}
		waiting++
		d, dated := exec.DateOf(rec, ageRoles...)
		if !dated {
			undated++
			continue
		}
		age := c.asOf.Sub(d).Hours() / 24
		if age <= threshold {
			continue
		}
		res.Count++
		oldest = math.Max(oldest, age)
		g.add(rec, d, dated, 1, 0, true)
	}
	res.Value = float64(res.Count)
	res.Details = map[string]float64{
		"waiting":         float64(waiting),
		"undated":         float64(undated),
		"oldest_age_days": oldest,
		"threshold_days":  threshold,
	}
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(exec, model.RoleStatus, model.RoleCreatedDate, model.RoleStartDate)
	return res, nil
}

// conversionRate is the share of won deals in the window that have at
// least one linked work order.
func conversionRate(c *calc) (model.MetricResult, error) {
	pipe := &c.data.Pipeline
	const capability = "conversion rate"
	if err := chain(
		c.requireAny(pipe, capability, statusRole...),
		c.requireDates(pipe, capability, closeRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	linked := c.data.Links.LinkedPipeline()
	res := c.result(model.MetricConversionRate, model.UnitPercent)
	g := c.groups()
	var won, converted int
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		if rec.Status != model.StatusWon {
			continue
		}
		d, dated := pipe.DateOf(rec, closeRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		won++
		var hit float64
		if linked[rec.ID] {
			converted++
			hit = 1
		}
		g.add(rec, d, dated, hit, 1, true)
	}
	res.Count = won
	res.Value, res.NoData = fold(foldPercent, float64(converted), float64(won))
	res.Details = map[string]float64{"won": float64(won), "converted": float64(converted)}
	res.Breakdown = g.buckets(foldPercent)
	res.Caveats = append(
		c.caveats(pipe, model.RoleStatus, model.RoleStage, model.RoleCloseDate, model.RoleTentativeCloseDate),
		c.caveats(&c.data.Execution, model.RoleLinkKey, model.RoleDealName)...,
	)
	return res, nil
}

// revenuePerProject divides closed revenue by active work orders for the
// same window.
func revenuePerProject(c *calc) (model.MetricResult, error) {
	revenue, err := closedRevenue(c)
	if err != nil {
		return model.MetricResult{}, err
	}
	orders, err := activeWorkOrders(c)
	if err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricRevenuePerProject, model.UnitCurrency)
	res.Count = orders.Count
	res.Value, res.NoData = fold(foldRatio, revenue.Value, orders.Value)
	res.Details = map[string]float64{"closed_revenue": revenue.Value, "active_work_orders": orders.Value}

	if c.by != model.GroupNone {
		g := c.groups()
		pipe, exec := &c.data.Pipeline, &c.data.Execution
		for i := range pipe.Records {
			rec := &pipe.Records[i]
			if rec.Status != model.StatusWon {
				continue
			}
			d, dated := pipe.DateOf(rec, closeRoles...)
			if c.inWindow(d, dated) {
				v, _ := pipe.NumberOf(rec, model.RoleRevenue)
				g.add(rec, d, dated, v, 0, false)
			}
		}
		for i := range exec.Records {
			rec := &exec.Records[i]
			if c.active(exec, rec) {
				d, dated := exec.DateOf(rec, startRoles...)
				g.add(rec, d, dated, 0, 1, true)
			}
		}
		res.Breakdown = g.buckets(foldRatio)
	}
	res.Caveats = append(revenue.Caveats, orders.Caveats...)
	return res, nil
}

// winRate is won / (won + open) over pipeline records in the window.
func winRate(c *calc) (model.MetricResult, error) {
	pipe := &c.data.Pipeline
	const capability = "win rate"
	if err := chain(
		c.requireAny(pipe, capability, statusRole...),
		c.requireDates(pipe, capability, closeRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricWinRate, model.UnitPercent)
	g := c.groups()
	var won, open int
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		isWon := rec.Status == model.StatusWon
		isOpen := model.StatusIn(rec.Status, c.policy.OpenPipelineStatuses)
		if !isWon && !isOpen {
			continue
		}
		d, dated := pipe.DateOf(rec, closeRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		var hit float64
		if isWon {
			won++
			hit = 1
		} else {
			open++
		}
		g.add(rec, d, dated, hit, 1, true)
	}
	res.Count = won + open
	res.Value, res.NoData = fold(foldPercent, float64(won), float64(won+open))
	res.Details = map[string]float64{"won": float64(won), "open": float64(open)}
	res.Breakdown = g.buckets(foldPercent)
	res.Caveats = c.caveats(pipe, model.RoleStatus, model.RoleStage, model.RoleCloseDate, model.RoleTentativeCloseDate)
	return res, nil
}

// unbilledBacklogValue sums what active work orders have yet to bill.
func unbilledBacklogValue(c *calc) (model.MetricResult, error) {
	exec := &c.data.Execution
	const capability = "unbilled backlog value"
	if err := chain(
		c.require(exec, capability, model.RoleStatus, model.RoleRevenue, model.RoleBilled),
		c.requireDates(exec, capability, startRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	res := c.result(model.MetricUnbilledBacklogValue, model.UnitCurrency)
	g := c.groups()
	var contract, billed float64
	for i := range exec.Records {
		rec := &exec.Records[i]
		if !c.active(exec, rec) {
			continue
		}
		amount, _ := exec.NumberOf(rec, model.RoleRevenue)
		done, _ := exec.NumberOf(rec, model.RoleBilled)
		open := math.Max(0, amount-done)
		contract += amount
		billed += done
		res.Value += open
		res.Count++
		d, dated := exec.DateOf(rec, startRoles...)
		g.add(rec, d, dated, open, 0, true)
	}
	res.Details = map[string]float64{"contract_value": contract, "billed_value": billed}
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(exec, model.RoleStatus, model.RoleRevenue, model.RoleBilled, model.RoleStartDate, model.RoleCreatedDate)
	return res, nil
}

// realizationRate compares the value of work orders linked to won deals
// with the won value of those deals. Deals are placed in the window by
// close date; their work orders follow them into the same bucket.
func realizationRate(c *calc) (model.MetricResult, error) {
	pipe, exec := &c.data.Pipeline, &c.data.Execution
	const capability = "realization rate"
	if err := chain(
		c.require(pipe, capability, model.RoleRevenue),
		c.requireAny(pipe, capability, statusRole...),
		c.requireDates(pipe, capability, closeRoles...),
		c.require(exec, capability, model.RoleRevenue),
	); err != nil {
		return model.MetricResult{}, err
	}

	orders := make(map[string]*model.CleanRecord, len(exec.Records))
	for i := range exec.Records {
		orders[exec.Records[i].ID] = &exec.Records[i]
	}
	realized := map[string]float64{}
	for _, e := range c.data.Links.Edges {
		if rec, ok := orders[e.ExecutionID]; ok {
			v, _ := exec.NumberOf(rec, model.RoleRevenue)
			realized[e.PipelineID] += v
		}
	}

	res := c.result(model.MetricRealizationRate, model.UnitPercent)
	g := c.groups()
	var won, ordered float64
	var linked int
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		if rec.Status != model.StatusWon {
			continue
		}
		d, dated := pipe.DateOf(rec, closeRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		v, _ := pipe.NumberOf(rec, model.RoleRevenue)
		r, ok := realized[rec.ID]
		if ok {
			linked++
		}
		won += v
		ordered += r
		res.Count++
		g.add(rec, d, dated, r, v, true)
	}
	res.Value, res.NoData = fold(foldPercent, ordered, won)
	res.Details = map[string]float64{
		"won_value":        won,
		"work_order_value": ordered,
		"linked_deals":     float64(linked),
	}
	res.Breakdown = g.buckets(foldPercent)
	res.Caveats = append(
		c.caveats(pipe, model.RoleRevenue, model.RoleStatus, model.RoleStage, model.RoleCloseDate, model.RoleTentativeCloseDate),
		c.caveats(exec, model.RoleRevenue, model.RoleLinkKey, model.RoleDealName)...,
	)
	return res, nil
}

// completedWorkOrders counts completed work orders by start date. The
// contract value of those orders is reported when an amount is bound.
func completedWorkOrders(c *calc) (model.MetricResult, error) {
	exec := &c.data.Execution
	const capability = "completed work orders"
	if err := chain(
		c.require(exec, capability, model.RoleStatus),
		c.requireDates(exec, capability, startRoles...),
	); err != nil {
		return model.MetricResult{}, err
	}

	valued := exec.Schema.Has(model.RoleRevenue)
	res := c.result(model.MetricCompletedWorkOrders, model.UnitCount)
	g := c.groups()
	var value float64
	for i := range exec.Records {
		rec := &exec.Records[i]
		if rec.Status != model.StatusCompleted {
			continue
		}
		d, dated := exec.DateOf(rec, startRoles...)
		if !c.inWindow(d, dated) {
			continue
		}
		res.Count++
		v, _ := exec.NumberOf(rec, model.RoleRevenue)
		value += v
		g.add(rec, d, dated, 1, 0, true)
	}
	res.Value = float64(res.Count)
	if valued {
		res.Details = map[string]float64{"completed_value": value}
	}
	res.Breakdown = g.buckets(foldSum)
	res.Caveats = c.caveats(exec, model.RoleStatus, model.RoleRevenue, model.RoleStartDate, model.RoleCreatedDate)
	return res, nil
}
