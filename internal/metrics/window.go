package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/bi-agent/internal/model"
)

// Window labels understood by ResolveWindow.
const (
	WindowAllTime     = "all_time"
	WindowThisMonth   = "this_month"
	WindowLastMonth   = "last_month"
	WindowThisQuarter = "this_quarter"
	WindowLastQuarter = "last_quarter"
	WindowThisYear    = "this_year"
	WindowLastYear    = "last_year"
)

// ResolveWindow turns a window label into calendar bounds relative to asOf.
// Quarters and years are fiscal, starting in fiscalStart. "this_year" runs
// from the fiscal year start to asOf. An empty label is all time; an
// unknown label returns false.
func ResolveWindow(label string, asOf time.Time, fiscalStart time.Month) (model.Window, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	asOf = civil(asOf)

	var w model.Window
	switch label {
	case "", WindowAllTime:
		return model.Window{}, true
	case WindowThisMonth:
		w = monthWindow(asOf)
	case WindowLastMonth:
		w = monthWindow(firstOfMonth(asOf).AddDate(0, 0, -1))
	case WindowThisQuarter:
		w = QuarterWindow(asOf, fiscalStart)
	case WindowLastQuarter:
		w = QuarterWindow(QuarterWindow(asOf, fiscalStart).Start.AddDate(0, 0, -1), fiscalStart)
	case WindowThisYear:
		w = FiscalYearWindow(asOf, fiscalStart)
		w.End = asOf
	case WindowLastYear:
		w = FiscalYearWindow(FiscalYearWindow(asOf, fiscalStart).Start.AddDate(0, 0, -1), fiscalStart)
	default:
		return model.Window{}, false
	}
	w.Label = label
	return w, true
}

// FiscalQuarter returns the 1-based fiscal quarter of d and the fiscal
// year it belongs to, named by the calendar year in which it ends.
func FiscalQuarter(d time.Time, fiscalStart time.Month) (quarter, year int) {
	offset := (int(d.Month()) - int(fiscalStart) + 12) % 12
	return offset/3 + 1, fiscalEndYear(d, fiscalStart)
}

// QuarterLabel renders d's fiscal quarter as "Q1 FY2026".
func QuarterLabel(d time.Time, fiscalStart time.Month) string {
	q, fy := FiscalQuarter(d, fiscalStart)
	return fmt.Sprintf("Q%d FY%d", q, fy)
}

// QuarterWindow returns the full fiscal quarter containing d.
func QuarterWindow(d time.Time, fiscalStart time.Month) model.Window {
	q, _ := FiscalQuarter(d, fiscalStart)
	start := time.Date(fiscalStartYear(d, fiscalStart), fiscalStart+time.Month((q-1)*3), 1, 0, 0, 0, 0, time.UTC)
	return model.Window{
		Label: QuarterLabel(d, fiscalStart),
		Start: start,
		End:   start.AddDate(0, 3, -1),
	}
}

// FiscalYearWindow returns the full fiscal year containing d.
func FiscalYearWindow(d time.Time, fiscalStart time.Month) model.Window {
	start := time.Date(fiscalStartYear(d, fiscalStart), fiscalStart, 1, 0, 0, 0, 0, time.UTC)
	return model.Window{
		Label: fmt.Sprintf("FY%d", fiscalEndYear(d, fiscalStart)),
		Start: start,
		End:   start.AddDate(1, 0, -1),
	}
}

func fiscalStartYear(d time.Time, fiscalStart time.Month) int {
	if d.Month() >= fiscalStart {
		return d.Year()
	}
	return d.Year() - 1
}

func fiscalEndYear(d time.Time, fiscalStart time.Month) int {
	if fiscalStart == time.January {
		return d.Year()
	}
	return fiscalStartYear(d, fiscalStart) + 1
}

func monthWindow(d time.Time) model.Window {
	start := firstOfMonth(d)
	return model.Window{Start: start, End: start.AddDate(0, 1, -1)}
}

func firstOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
