package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// NamedRef is a lookup relationship that only carries a name.
type NamedRef struct {
	Name string `json:"Name" salesforce:"Name"`
}

// OpportunityAccount is the Account relationship selected with an Opportunity.
type OpportunityAccount struct {
	Name     string `json:"Name" salesforce:"Name"`
	Industry string `json:"Industry" salesforce:"Industry"`
}

// Opportunity represents a Salesforce Opportunity record. Nullable numeric
// fields are pointers so that a missing amount stays distinguishable from
// zero.
type Opportunity struct {
	ID          string              `json:"Id" salesforce:"Id"`
	Name        string              `json:"Name" salesforce:"Name"`
	StageName   string              `json:"StageName" salesforce:"StageName"`
	Amount      *float64            `json:"Amount" salesforce:"Amount"`
	Probability *float64            `json:"Probability" salesforce:"Probability"`
	CloseDate   string              `json:"CloseDate" salesforce:"CloseDate"`
	CreatedDate string              `json:"CreatedDate" salesforce:"CreatedDate"`
	IsClosed    bool                `json:"IsClosed" salesforce:"IsClosed"`
	IsWon       bool                `json:"IsWon" salesforce:"IsWon"`
	Account     *OpportunityAccount `json:"Account" salesforce:"Account"`
	Owner       *NamedRef           `json:"Owner" salesforce:"Owner"`
}

// opportunityFields are the SOQL fields selected for Opportunity queries.
var opportunityFields = []string{
	"Id", "Name", "StageName", "Amount", "Probability", "CloseDate",
	"CreatedDate", "IsClosed", "IsWon", "Account.Name", "Account.Industry",
	"Owner.Name",
}

// OpportunityQuery narrows ListOpportunities.
type OpportunityQuery struct {
	// CreatedSince drops opportunities created before it when non-zero.
	CreatedSince time.Time
	// RecordTypes restricts to the named record types when set.
	RecordTypes []string
}

// SOQL renders the query. Ordering by Id keeps the result stable.
func (q OpportunityQuery) SOQL() string {
	var where []string
	if !q.CreatedSince.IsZero() {
		where = append(where, "CreatedDate >= "+q.CreatedSince.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if len(q.RecordTypes) > 0 {
		quoted := make([]string, len(q.RecordTypes))
		for i, rt := range q.RecordTypes {
			quoted[i] = "'" + escapeSoql(rt) + "'"
		}
		where = append(where, "RecordType.Name IN ("+strings.Join(quoted, ", ")+")")
	}

	soql := fmt.Sprintf("SELECT %s FROM Opportunity", strings.Join(opportunityFields, ", "))
	if len(where) > 0 {
		soql += " WHERE " + strings.Join(where, " AND ")
	}
	return soql + " ORDER BY Id"
}

// ListOpportunities returns every Opportunity matching q.
func ListOpportunities(ctx context.Context, c Client, q OpportunityQuery) ([]Opportunity, error) {
	var opps []Opportunity
	if err := c.Query(ctx, q.SOQL(), &opps); err != nil {
		return nil, eris.Wrap(err, "sf: list opportunities")
	}
	return opps, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
