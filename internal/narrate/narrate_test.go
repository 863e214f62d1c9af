package narrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/intent"
	"github.com/sells-group/bi-agent/internal/model"
)

func pipelineAnswer() engine.Answer {
	q := model.Window{
		Label: "Q1 FY2026",
		Start: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	buckets := []model.Bucket{
		{Key: "mining", Value: 9000000, Count: 3},
		{Key: "railways", Value: 4000000, Count: 2},
		{Key: "powerline", Value: 2000000, Count: 2},
		{Key: "renewables", Value: 1000000, Count: 1},
		{Key: "construction", Value: 500000, Count: 1},
		{Key: "unspecified", Value: 100000, Count: 1},
	}
	return engine.Answer{
		Domain: intent.DomainPipeline,
		Window: q,
		Metrics: []model.MetricResult{{
			Name: model.MetricOpenPipelineValue, Unit: model.UnitCurrency, Value: 16600000, Count: 10,
			Window: q, GroupBy: model.GroupSector, Breakdown: buckets,
			Details: map[string]float64{"unweighted": 25000000},
		}},
		Unavailable: []*model.DataShapeError{
			model.NewDataShapeError(model.CollectionPipeline, string(model.MetricWinRate), model.RoleStatus),
		},
		Caveats: []model.FieldCaveat{
			{Collection: model.CollectionPipeline, Field: "Closure Probability", Rate: 0.4, Defaulted: 4, Total: 10},
		},
	}
}

func TestRender_Metrics(t *testing.T) {
	out := Render(pipelineAnswer())

	for _, want := range []string{
		"## Pipeline (Q1 FY2026)",
		"- **Open Pipeline:** ₹1.66 Cr weighted, ₹2.50 Cr total",
		"  - Mining: ₹90.00 L (3)",
		"  - Construction: ₹5.00 L (1)",
		"  - and 1 more",
		"- **Win Rate:** unavailable, pipeline collection has no status field",
		"### Data Caveats",
		`40% of pipeline records have no usable "Closure Probability"`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Unspecified")
}

func TestRender_NoData(t *testing.T) {
	out := Render(engine.Answer{
		Domain:  intent.DomainRevenue,
		Metrics: []model.MetricResult{{Name: model.MetricClosedRevenue, Unit: model.UnitCurrency, NoData: true}},
	})
	assert.Contains(t, out, "## Revenue (all time)")
	assert.Contains(t, out, "- **Closed Revenue:** n/a (no matching records)")
}

func TestRender_Clarification(t *testing.T) {
	out := Render(engine.Answer{
		Domain:              intent.DomainAmbiguous,
		ClarificationNeeded: true,
		ClarificationPrompt: "Do you mean revenue or pipeline?",
	})
	assert.Equal(t, "Do you mean revenue or pipeline?", out)
}

func TestRender_Summary(t *testing.T) {
	s := model.StructuredSummary{
		Title: "Leadership Update: Q1 FY2026",
		AsOf:  time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
	}
	out := Render(engine.Answer{Domain: intent.DomainLeadership, Summary: &s})
	assert.Contains(t, out, "## Leadership Update: Q1 FY2026")
	assert.Contains(t, out, "*As of 15 May 2025*")
}

func TestRender_WindowWithoutLabel(t *testing.T) {
	w := model.Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "01 Jan 2025 to 31 Jan 2025", windowLabel(w))
}

func TestTemplateNarrator(t *testing.T) {
	a := pipelineAnswer()
	out, err := TemplateNarrator{}.Narrate(context.Background(), Request{Question: "pipeline?", Answer: a})
	require.NoError(t, err)
	assert.Equal(t, Render(a), out)
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "Win Rate", MetricLabel(model.MetricWinRate))
	assert.Equal(t, "Gross Margin", MetricLabel(model.MetricName("gross_margin")))
}
