package summary

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/bi-agent/internal/model"
)

// shareLimit caps the sectors listed in a rendered update.
const shareLimit = 5

// FormatINR renders an amount in Indian units: ₹2.50 Cr, ₹45.00 L, ₹12.5K.
func FormatINR(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	switch {
	case v == 0:
		return "₹0"
	case v >= 1e7:
		return fmt.Sprintf("%s₹%.2f Cr", sign, v/1e7)
	case v >= 1e5:
		return fmt.Sprintf("%s₹%.2f L", sign, v/1e5)
	case v >= 1e3:
		return fmt.Sprintf("%s₹%.1fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s₹%.0f", sign, math.Round(v))
	}
}

// FormatMetric renders a metric value in its unit, or "n/a" without data.
func FormatMetric(r model.MetricResult) string {
	if r.NoData {
		return "n/a"
	}
	switch r.Unit {
	case model.UnitCurrency:
		return FormatINR(r.Value)
	case model.UnitPercent:
		return fmt.Sprintf("%.1f%%", r.Value)
	default:
		return fmt.Sprintf("%d", int(math.Round(r.Value)))
	}
}

// Title renders a normalized label for display.
func Title(s string) string {
	return cases.Title(language.English).String(s)
}

// Render produces the markdown leadership update.
func Render(s model.StructuredSummary) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line("## %s", s.Title)
	line("*As of %s*", s.AsOf.Format("02 Jan 2006"))

	line("")
	line("### Pipeline")
	if unweighted, ok := s.OpenPipeline.Details["unweighted"]; ok {
		line("- **Open Pipeline (weighted):** %s", FormatMetric(s.OpenPipeline))
		line("- **Open Pipeline (total):** %s", FormatINR(unweighted))
	} else {
		line("- **Open Pipeline:** %s", FormatMetric(s.OpenPipeline))
	}
	if s.PipelineClosing != nil {
		line("- **Closing This Quarter:** %s", FormatMetric(*s.PipelineClosing))
	}
	line("- **Win Rate:** %s", FormatMetric(s.WinRate))
	if len(s.SectorShare) > 0 {
		line("- **By Sector:**")
		for i, share := range s.SectorShare {
			if i == shareLimit {
				break
			}
			line("  - %s: %s (%.1f%%)", Title(share.Sector), FormatINR(share.Value), share.Percent)
		}
	}

	line("")
	line("### Revenue (%s)", s.Quarter.Label)
	line("- **Closed Revenue:** %s", FormatMetric(s.ClosedRevenue))

	line("")
	line("### Operations")
	line("- **Active Work Orders:** %s", FormatMetric(s.ActiveWorkOrders))
	line("- **Execution Backlog:** %s", FormatMetric(s.Backlog))
	if s.UnbilledBacklog != nil {
		line("- **Unbilled Backlog:** %s", FormatMetric(*s.UnbilledBacklog))
	}
	if s.ActiveWorkOrders.Value > 0 {
		line("- **Operational Risk:** %s (backlog/active %.2f)", s.Risk, s.RiskRatio)
	} else {
		line("- **Operational Risk:** %s (no active work orders)", s.Risk)
	}

	line("")
	line("### Conversion")
	line("- **Won Deals With Work Orders:** %s", FormatMetric(s.ConversionRate))
	line("- **Links:** %d exact, %d fuzzy, %d work orders unlinked",
		s.Links.Exact, s.Links.Fallback, s.Links.UnlinkedExecution)

	notes := caveatNotes(s)
	if len(notes) > 0 {
		line("")
		line("### Data Caveats")
		for _, n := range notes {
			line("- %s", n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func caveatNotes(s model.StructuredSummary) []string {
	var out []string
	for _, c := range s.Caveats {
		out = append(out, CaveatNote(c))
	}
	for _, c := range []model.Collection{model.CollectionPipeline, model.CollectionExecution} {
		if n := s.Excluded[c]; n > 0 {
			out = append(out, fmt.Sprintf("%d %s records excluded (missing id or name, header rows, duplicates)", n, c))
		}
	}
	return out
}

// CaveatNote describes one defaulted field in prose.
func CaveatNote(c model.FieldCaveat) string {
	return fmt.Sprintf("%.0f%% of %s records have no usable %q (%d of %d defaulted)",
		c.Rate*100, c.Collection, c.Field, c.Defaulted, c.Total)
}
