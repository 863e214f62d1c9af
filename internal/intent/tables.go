package intent

import (
	"github.com/sells-group/bi-agent/internal/metrics"
	"github.com/sells-group/bi-agent/internal/model"
)

// domainPhrases maps question phrases to the domain they signal.
var domainPhrases = map[Domain][]string{
	DomainRevenue: {
		"revenue", "closed revenue", "income", "earned", "earnings", "won deals",
		"deals won", "won", "billed", "billed revenue", "money", "sales", "closed deals",
		"sales revenue",
		"how much have we made", "bookings",
	},
	DomainPipeline: {
		"pipeline", "open pipeline", "weighted pipeline", "open deals", "deals in progress",
		"pending pipeline", "stage", "stages", "funnel", "forecast", "prospects",
		"opportunities", "negotiation", "deals closing", "closing soon", "future revenue",
		"sales pipeline", "sales funnel",
	},
	DomainOperations: {
		"operations", "operational", "work order", "work orders", "execution", "projects",
		"active projects", "backlog", "execution backlog", "capacity", "delivery",
		"unbilled", "pending work", "queued", "completed", "completed work orders",
		"completed projects", "completed revenue", "finished projects",
	},
	DomainCrossboard: {
		"conversion", "conversion rate", "convert", "converted", "win rate",
		"deal to work order", "deals to work orders", "linkage", "linked",
		"realized vs pipeline", "revenue per project", "cross board", "crossboard",
		"realization", "realization rate", "realisation", "realized revenue", "realised revenue",
		"won deals got work orders", "won deals have work orders", "won deals with work orders",
		"won deals became work orders", "deals got work orders", "deals with work orders",
	},
	DomainLeadership: {
		"leadership", "leadership update", "executive summary", "summary", "status report",
		"board update", "founders update", "full update", "everything",
	},
}

// windowPhrases maps time phrases to window labels.
var windowPhrases = map[string][]string{
	metrics.WindowThisMonth:   {"this month", "current month", "mtd", "month to date"},
	metrics.WindowLastMonth:   {"last month", "previous month"},
	metrics.WindowThisQuarter: {"this quarter", "current quarter", "qtd", "quarter to date"},
	metrics.WindowLastQuarter: {"last quarter", "previous quarter"},
	metrics.WindowThisYear:    {"ytd", "year to date", "this year", "this fiscal year", "this fy", "current year"},
	metrics.WindowLastYear:    {"last year", "previous year", "last fiscal year", "last fy"},
	metrics.WindowAllTime:     {"all time", "ever"},
}

// groupPhrases maps breakdown phrases to groupings.
var groupPhrases = map[model.GroupBy][]string{
	model.GroupSector:  {"by sector", "sector wise", "per sector", "each sector", "by industry", "sector breakdown"},
	model.GroupMonth:   {"monthly", "by month", "month wise", "per month", "month on month"},
	model.GroupQuarter: {"quarterly", "by quarter", "quarter wise", "per quarter"},
	model.GroupStatus:  {"by status", "status wise", "per status", "each status", "status breakdown", "by execution status"},
}

// domainMetrics lists the catalog metrics answering each domain.
var domainMetrics = map[Domain][]model.MetricName{
	DomainRevenue:    {model.MetricClosedRevenue},
	DomainPipeline:   {model.MetricOpenPipelineValue, model.MetricPipelineClosing, model.MetricWinRate},
	DomainOperations: {model.MetricActiveWorkOrders, model.MetricExecutionBacklog, model.MetricUnbilledBacklogValue, model.MetricCompletedWorkOrders},
	DomainCrossboard: {model.MetricConversionRate, model.MetricRealizationRate, model.MetricRevenuePerProject, model.MetricWinRate},
}

// Clarification prompts, chosen by keyword when a question is ambiguous.
const (
	promptHowAreWeDoing = "Could you clarify what you'd like to know? Are you asking about:\n" +
		"- **Revenue** (how much we've earned?)\n" +
		"- **Pipeline** (open deals and future revenue?)\n" +
		"- **Operations** (work order execution and capacity?)\n" +
		"- **Everything** (full leadership update?)"
	promptRevenue = "When you say 'revenue', do you mean:\n" +
		"- **Closed revenue** (deals already won?)\n" +
		"- **Pipeline revenue** (open deals that haven't closed yet?)\n" +
		"- **Billed revenue** (amounts invoiced from work orders?)"
	promptTime = "Which time period are you asking about?\n" +
		"- **This month**\n" +
		"- **This quarter** (current financial quarter)\n" +
		"- **Year-to-date** (this financial year)\n" +
		"- **All time**"
	promptGeneric = "Could you clarify your question? I can help with revenue, pipeline, " +
		"operations, conversion rates, or a full leadership update."
)

var (
	howAreWeDoingWords = []string{"doing", "status", "overall", "update", "how are", "going"}
	revenueWords       = []string{"revenue", "income", "money"}
	timeWords          = []string{"when", "period", "time", "month", "quarter", "year"}
)

// clarificationMarkers identify an assistant turn that asked for
// clarification.
var clarificationMarkers = []string{
	"do you mean:", "could you clarify", "when you say", "are you asking", "which time period",
}
