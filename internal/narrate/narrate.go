// Package narrate turns computed answers into prose. It only reads results
// the engine has already computed and never changes a value.
package narrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/intent"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/summary"
)

// Request is one answer to narrate.
type Request struct {
	Question string
	History  []model.Turn
	Answer   engine.Answer
}

// Narrator renders an answer as markdown.
type Narrator interface {
	Narrate(ctx context.Context, req Request) (string, error)
}

// breakdownLimit caps the buckets listed per metric.
const breakdownLimit = 5

var metricLabels = map[model.MetricName]string{
	model.MetricClosedRevenue:        "Closed Revenue",
	model.MetricOpenPipelineValue:    "Open Pipeline",
	model.MetricActiveWorkOrders:     "Active Work Orders",
	model.MetricExecutionBacklog:     "Execution Backlog",
	model.MetricConversionRate:       "Won Deals With Work Orders",
	model.MetricRevenuePerProject:    "Revenue per Project",
	model.MetricWinRate:              "Win Rate",
	model.MetricUnbilledBacklogValue: "Unbilled Backlog",
	model.MetricPipelineClosing:      "Pipeline Closing",
	model.MetricRealizationRate:      "Work Order Value vs Won Value",
	model.MetricCompletedWorkOrders:  "Completed Work Orders",
}

var domainTitles = map[intent.Domain]string{
	intent.DomainRevenue:    "Revenue",
	intent.DomainPipeline:   "Pipeline",
	intent.DomainOperations: "Operations",
	intent.DomainCrossboard: "Pipeline to Execution",
}

// MetricLabel returns the display name of a metric.
func MetricLabel(name model.MetricName) string {
	if l, ok := metricLabels[name]; ok {
		return l
	}
	return summary.Title(strings.ReplaceAll(string(name), "_", " "))
}

// TemplateNarrator renders answers with fixed markdown templates. Its
// output depends only on the answer.
type TemplateNarrator struct{}

// Narrate implements Narrator.
func (TemplateNarrator) Narrate(_ context.Context, req Request) (string, error) {
	return Render(req.Answer), nil
}

// Render is the deterministic markdown form of an answer.
func Render(a engine.Answer) string {
	if a.ClarificationNeeded {
		return a.ClarificationPrompt
	}
	if a.Summary != nil {
		return summary.Render(*a.Summary)
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line("## %s (%s)", domainTitle(a.Domain), windowLabel(a.Window))
	for _, m := range a.Metrics {
		line("- **%s:** %s", MetricLabel(m.Name), metricValue(m))
		for i, bucket := range m.Breakdown {
			if i == breakdownLimit {
				line("  - and %d more", len(m.Breakdown)-breakdownLimit)
				break
			}
			line("  - %s: %s (%d)", summary.Title(strings.ReplaceAll(bucket.Key, "_", " ")), bucketValue(m.Unit, bucket), bucket.Count)
		}
	}
	for _, dse := range a.Unavailable {
		line("- **%s:** unavailable, %s collection has no %s field", MetricLabel(model.MetricName(dse.Capability)), dse.Collection, joinRoles(dse.Missing))
	}

	if len(a.Caveats) > 0 {
		line("")
		line("### Data Caveats")
		for _, c := range a.Caveats {
			line("- %s", summary.CaveatNote(c))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func metricValue(m model.MetricResult) string {
	out := summary.FormatMetric(m)
	if unweighted, ok := m.Details["unweighted"]; ok && !m.NoData {
		out += fmt.Sprintf(" weighted, %s total", summary.FormatINR(unweighted))
	}
	if m.NoData {
		out += " (no matching records)"
	}
	return out
}

func bucketValue(unit model.Unit, b model.Bucket) string {
	return summary.FormatMetric(model.MetricResult{Unit: unit, Value: b.Value, NoData: b.NoData})
}

func domainTitle(d intent.Domain) string {
	if t, ok := domainTitles[d]; ok {
		return t
	}
	return summary.Title(string(d))
}

func windowLabel(w model.Window) string {
	if w.IsAllTime() {
		return "all time"
	}
	if w.Label != "" {
		return w.Label
	}
	return w.Start.Format("02 Jan 2006") + " to " + w.End.Format("02 Jan 2006")
}

func joinRoles(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = strings.ReplaceAll(string(r), "_", " ")
	}
	return strings.Join(names, " or ")
}
