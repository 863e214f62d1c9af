package policy

import (
	"time"

	"github.com/sells-group/bi-agent/internal/model"
)

// DefaultDateFormats are tried in order; the first layout that parses wins.
var DefaultDateFormats = []string{
	model.DateLayout,
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2006/1/2",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
}

func defaultSynonyms() map[model.Collection]map[string]model.Status {
	pipeline := map[string]model.Status{}
	add := func(s model.Status, labels ...string) {
		for _, l := range labels {
			pipeline[l] = s
		}
	}
	add(model.StatusWon, "won", "closed won", "closed-won", "deal won",
		"g. project won", "h. work order received", "i. poc", "j. invoice sent",
		"k. amount accrued", "project completed")
	add(model.StatusLost, "lost", "dead", "closed lost", "closed-lost",
		"l. project lost", "n. not relevant at the moment", "o. not relevant at all")
	add(model.StatusOnHold, "on hold", "on-hold", "m. projects on hold")
	add(model.StatusOpen, "open", "a. lead generated", "b. sales qualified leads",
		"c. demo done", "d. feasibility", "e. proposal/commercials sent",
		"prospecting", "qualification", "needs analysis", "value proposition",
		"id. decision makers", "perception analysis", "proposal/price quote")
	add(model.StatusNegotiation, "negotiation", "negotiations", "f. negotiations",
		"negotiation/review")

	execution := map[string]model.Status{}
	add = func(s model.Status, labels ...string) {
		for _, l := range labels {
			execution[l] = s
		}
	}
	add(model.StatusCompleted, "completed", "complete", "done", "closed")
	add(model.StatusOngoing, "ongoing", "in progress", "executed until current month")
	add(model.StatusNotStarted, "not started", "yet to start")
	add(model.StatusPaused, "paused", "pause / struck", "struck", "on hold")
	add(model.StatusPartiallyCompleted, "partially completed", "partial")
	add(model.StatusPending, "pending", "details pending from client")
	add(model.StatusQueued, "queued", "in queue", "waiting")

	return map[model.Collection]map[string]model.Status{
		model.CollectionPipeline:  pipeline,
		model.CollectionExecution: execution,
	}
}

func defaultKeywords() map[model.Collection][]KeywordRule {
	return map[model.Collection][]KeywordRule{
		model.CollectionPipeline: {
			{Contains: "not relevant", Status: model.StatusLost},
			{Contains: "lost", Status: model.StatusLost},
			{Contains: "hold", Status: model.StatusOnHold},
			{Contains: "negotiat", Status: model.StatusNegotiation},
			{Contains: "won", Status: model.StatusWon},
		},
		model.CollectionExecution: {
			{Contains: "partial", Status: model.StatusPartiallyCompleted},
			{Contains: "completed", Status: model.StatusCompleted},
			{Contains: "ongoing", Status: model.StatusOngoing},
			{Contains: "executed until", Status: model.StatusOngoing},
			{Contains: "not started", Status: model.StatusNotStarted},
			{Contains: "pause", Status: model.StatusPaused},
			{Contains: "struck", Status: model.StatusPaused},
			{Contains: "pending", Status: model.StatusPending},
			{Contains: "queue", Status: model.StatusQueued},
		},
	}
}

func defaultRoleHints() map[model.Collection]map[model.Role][]string {
	return map[model.Collection]map[model.Role][]string{
		model.CollectionPipeline: {
			model.RoleID:                 {model.FieldItemID, "id", "deal id", "opportunity id"},
			model.RoleName:               {model.FieldItemName, "deal name", "opportunity name", "name"},
			model.RoleStatus:             {"deal status", "status"},
			model.RoleStage:              {"deal stage", "stage"},
			model.RoleSector:             {"sector", "service", "industry"},
			model.RoleRevenue:            {"deal value", "masked deal value", "amount", "value"},
			model.RoleProbability:        {"probability", "closure"},
			model.RoleCloseDate:          {"close date (a)", "actual close", "close date"},
			model.RoleTentativeCloseDate: {"tentative", "expected close"},
			model.RoleCreatedDate:        {"created", "creation"},
			model.RoleOwner:              {"owner", "personnel"},
			model.RoleClient:             {"client", "company", "account"},
		},
		model.CollectionExecution: {
			model.RoleID:          {model.FieldItemID, "id", "work order id"},
			model.RoleName:        {model.FieldItemName, "work order name", "project name", "name"},
			model.RoleLinkKey:     {"deal id", "linked deal", "deal link", "opportunity id"},
			model.RoleDealName:    {"deal name", "deal"},
			model.RoleStatus:      {"execution status", "exec status", "status"},
			model.RoleSector:      {"sector"},
			model.RoleRevenue:     {"amount in rupees (excl", "excl of gst", "excl. of gst", "amount in rupees (incl", "incl of gst", "amount"},
			model.RoleBilled:      {"billed value in rupees (excl", "billed value", "billed"},
			model.RoleCreatedDate: {"created", "date of po", "po date"},
			model.RoleStartDate:   {"probable start", "start date"},
			model.RoleEndDate:     {"probable end", "end date", "delivery date"},
			model.RoleOwner:       {"bd/kam", "owner", "personnel"},
			model.RoleClient:      {"client", "customer"},
		},
	}
}
