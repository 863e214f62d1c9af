package summary

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/link"
	"github.com/sells-group/bi-agent/internal/metrics"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
	"github.com/sells-group/bi-agent/internal/sanitize"
)

func fixture(t *testing.T, orders []model.RawRecord) model.Dataset {
	t.Helper()
	p := policy.Default()
	s := sanitize.New(p)

	pipe := model.RawCollection{
		Collection: model.CollectionPipeline,
		Records: []model.RawRecord{
			{model.FieldItemID: "D1", model.FieldItemName: "Coal Survey", "Deal Stage": "Won", "Sector": "Mining", "Deal Value": "2.5 Cr", "Close Date (A)": "2025-04-20"},
			{model.FieldItemID: "D2", model.FieldItemName: "Metro Mapping", "Deal Stage": "Open", "Sector": "Railways", "Deal Value": "30L", "Closure Probability": "High", "Tentative Close Date": "2025-06-01"},
			{model.FieldItemID: "D3", model.FieldItemName: "Wind Survey", "Deal Stage": "Open", "Sector": "", "Deal Value": "10L", "Closure Probability": "Low"},
			{model.FieldItemID: "", model.FieldItemName: "No Id"},
		},
	}
	exec := model.RawCollection{Collection: model.CollectionExecution, Records: orders}

	cp, rp, err := s.Sanitize(pipe)
	require.NoError(t, err)
	ce, re, err := s.Sanitize(exec)
	require.NoError(t, err)

	return model.Dataset{
		Pipeline:  cp,
		Execution: ce,
		Links:     link.New(p).Link(ce, cp),
		Caveats:   rp.Merge(re),
		AsOf:      time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
	}
}

// orders returns active work orders followed by stale pending ones.
func orders(active, backlog int) []model.RawRecord {
	var out []model.RawRecord
	for i := 0; i < active; i++ {
		out = append(out, model.RawRecord{
			model.FieldItemID: "A" + string(rune('a'+i)), model.FieldItemName: "Active " + string(rune('a'+i)),
			"Execution Status": "Ongoing", "Deal Name": "Coal Survey", "Date of PO": "2025-04-01",
		})
	}
	for i := 0; i < backlog; i++ {
		out = append(out, model.RawRecord{
			model.FieldItemID: "B" + string(rune('a'+i)), model.FieldItemName: "Queued " + string(rune('a'+i)),
			"Execution Status": "Queued", "Deal Name": "", "Date of PO": "2025-01-01",
		})
	}
	return out
}

func assembler() *Assembler {
	p := policy.Default()
	return New(p, metrics.New(p))
}

func TestRisk(t *testing.T) {
	tests := []struct {
		backlog, active float64
		want            model.RiskLabel
	}{
		{9, 5, model.RiskHigh},
		{3, 5, model.RiskLow},
		{4, 5, model.RiskMedium},
		{7.5, 5, model.RiskMedium},
		{0, 0, model.RiskLow},
		{2, 0, model.RiskHigh},
	}
	for _, tt := range tests {
		got, _ := Risk(tt.backlog, tt.active, 1.5, 0.75)
		assert.Equal(t, tt.want, got, "backlog %v active %v", tt.backlog, tt.active)
	}
}

func TestAssemble_RiskFromBacklog(t *testing.T) {
	s, err := assembler().Assemble(fixture(t, orders(5, 9)))
	require.NoError(t, err)
	assert.InDelta(t, 5, s.ActiveWorkOrders.Value, 1e-9)
	assert.InDelta(t, 9, s.Backlog.Value, 1e-9)
	assert.Equal(t, model.RiskHigh, s.Risk)
	assert.InDelta(t, 1.8, s.RiskRatio, 1e-9)

	s, err = assembler().Assemble(fixture(t, orders(5, 3)))
	require.NoError(t, err)
	assert.Equal(t, model.RiskLow, s.Risk)
}

func TestAssemble(t *testing.T) {
	data := fixture(t, orders(2, 1))
	s, err := assembler().Assemble(data)
	require.NoError(t, err)

	assert.Equal(t, "Leadership Update: Q1 FY2026", s.Title)
	assert.Equal(t, data.AsOf, s.AsOf)
	assert.InDelta(t, 25000000, s.ClosedRevenue.Value, 1e-6)
	assert.InDelta(t, 2650000, s.OpenPipeline.Value, 1e-6, "weighted: 30L*0.8 + 10L*0.25")
	assert.InDelta(t, 4000000, s.OpenPipeline.Details["unweighted"], 1e-6)
	require.NotNil(t, s.PipelineClosing)
	assert.InDelta(t, 2400000, s.PipelineClosing.Value, 1e-6)
	assert.Nil(t, s.UnbilledBacklog, "no billed field bound")

	require.Len(t, s.SectorShare, 2)
	assert.Equal(t, "railways", s.SectorShare[0].Sector)
	assert.InDelta(t, 2400000.0/2650000.0*100, s.SectorShare[0].Percent, 1e-6)
	assert.Equal(t, model.Unspecified, s.SectorShare[1].Sector)

	assert.InDelta(t, 100, s.ConversionRate.Value, 1e-9)
	assert.Equal(t, 2, s.Links.Fallback)
	assert.Equal(t, 1, s.Links.UnlinkedExecution)
	assert.Equal(t, 1, s.Excluded[model.CollectionPipeline])
	assert.LessOrEqual(t, len(s.Caveats), 5)
	for i := 1; i < len(s.Caveats); i++ {
		assert.GreaterOrEqual(t, s.Caveats[i-1].Rate, s.Caveats[i].Rate)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	data := fixture(t, orders(3, 2))
	a, err := assembler().Assemble(data)
	require.NoError(t, err)
	b, err := assembler().Assemble(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, Render(a), Render(b))
}

func TestAssemble_DataShapeError(t *testing.T) {
	data := fixture(t, orders(1, 0))
	data.Execution.Schema = model.NewSchema(data.Execution.Schema.Fields, map[model.Role]string{
		model.RoleID:   model.FieldItemID,
		model.RoleName: model.FieldItemName,
	}, nil)

	_, err := assembler().Assemble(data)
	dse, ok := model.AsDataShapeError(err)
	require.True(t, ok)
	assert.Equal(t, model.CollectionExecution, dse.Collection)
}

func TestFormatINR(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "₹0"},
		{25000000, "₹2.50 Cr"},
		{4500000, "₹45.00 L"},
		{12500, "₹12.5K"},
		{999, "₹999"},
		{-150000, "-₹1.50 L"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatINR(tt.in))
	}
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "n/a", FormatMetric(model.MetricResult{Unit: model.UnitPercent, NoData: true}))
	assert.Equal(t, "66.7%", FormatMetric(model.MetricResult{Unit: model.UnitPercent, Value: 200.0 / 3.0}))
	assert.Equal(t, "12", FormatMetric(model.MetricResult{Unit: model.UnitCount, Value: 12}))
	assert.Equal(t, "₹1.2K", FormatMetric(model.MetricResult{Unit: model.UnitCurrency, Value: 1200}))
}

func TestRender(t *testing.T) {
	s, err := assembler().Assemble(fixture(t, orders(5, 9)))
	require.NoError(t, err)
	out := Render(s)

	for _, want := range []string{
		"## Leadership Update: Q1 FY2026",
		"*As of 15 May 2025*",
		"- **Open Pipeline (weighted):** ₹26.50 L",
		"- **Open Pipeline (total):** ₹40.00 L",
		"  - Railways: ₹24.00 L (90.6%)",
		"### Revenue (Q1 FY2026)",
		"- **Closed Revenue:** ₹2.50 Cr",
		"- **Operational Risk:** High (backlog/active 1.80)",
		"### Data Caveats",
		"1 pipeline records excluded",
	} {
		assert.Contains(t, out, want)
	}
	assert.False(t, strings.HasSuffix(out, "\n"))
}
