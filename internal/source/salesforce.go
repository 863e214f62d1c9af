package source

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/pkg/salesforce"
)

// Record keys produced for an Opportunity. They are chosen to match the
// pipeline role hints.
const (
	sfStage        = "Stage"
	sfAmount       = "Amount"
	sfProbability  = "Probability"
	sfActualClose  = "Actual Close Date"
	sfExpectedDate = "Expected Close Date"
	sfCreated      = "Created Date"
	sfIndustry     = "Industry"
	sfAccount      = "Account"
	sfOwner        = "Owner"
)

// sfFieldKeys maps Opportunity API names to the record keys they feed.
var sfFieldKeys = map[string][]string{
	"Amount":      {sfAmount},
	"Probability": {sfProbability},
	"CloseDate":   {sfActualClose, sfExpectedDate},
	"CreatedDate": {sfCreated},
}

// SalesforceSource reads the pipeline collection from Opportunity records.
type SalesforceSource struct {
	client salesforce.Client
	query  salesforce.OpportunityQuery
	guard  guard
}

// NewSalesforce returns a pipeline source over Opportunity.
func NewSalesforce(client salesforce.Client, q salesforce.OpportunityQuery, opts ...Option) *SalesforceSource {
	return &SalesforceSource{client: client, query: q, guard: newGuard("salesforce", opts)}
}

// Fetch lists opportunities and flattens them into pipeline records.
// Field types come from the Opportunity describe call; when it fails they
// are inferred instead.
func (s *SalesforceSource) Fetch(ctx context.Context) (model.RawCollection, error) {
	var opps []salesforce.Opportunity
	err := s.guard.run(ctx, "salesforce", "list opportunities", func(ctx context.Context) error {
		var err error
		opps, err = salesforce.ListOpportunities(ctx, s.client, s.query)
		return err
	})
	if err != nil {
		return model.RawCollection{}, eris.Wrap(err, "source: salesforce pipeline")
	}

	records := make([]model.RawRecord, 0, len(opps))
	for _, o := range opps {
		records = append(records, opportunityRecord(o))
	}
	records = uniqueByID(model.CollectionPipeline, records)

	zap.L().Info("source: fetched salesforce pipeline", zap.Int("records", len(records)))
	return model.RawCollection{
		Collection: model.CollectionPipeline,
		Schema:     model.NewSchema(s.declaredTypes(ctx), nil, nil),
		Records:    records,
	}, nil
}

func (s *SalesforceSource) declaredTypes(ctx context.Context) []model.FieldSpec {
	desc, err := s.client.DescribeSObject(ctx, "Opportunity")
	if err != nil {
		zap.L().Warn("source: describe opportunity failed, inferring types", zap.Error(err))
		return nil
	}

	var out []model.FieldSpec
	for _, api := range []string{"Amount", "Probability", "CloseDate", "CreatedDate"} {
		f, ok := desc.Field(api)
		if !ok {
			continue
		}
		t := sfFieldType(f.Type)
		if t == "" {
			continue
		}
		for _, key := range sfFieldKeys[api] {
			out = append(out, model.FieldSpec{Name: key, Type: t})
		}
	}
	return out
}

func sfFieldType(t string) model.FieldType {
	switch t {
	case "currency", "double", "percent", "int", "long":
		return model.TypeNumeric
	case "date", "datetime":
		return model.TypeDate
	default:
		return ""
	}
}

// opportunityRecord flattens an Opportunity. CloseDate is the actual close
// date once the opportunity is closed and the expected one before that.
// Probability arrives as a percentage and is stored as a fraction.
func opportunityRecord(o salesforce.Opportunity) model.RawRecord {
	rec := model.RawRecord{
		model.FieldItemID:   o.ID,
		model.FieldItemName: o.Name,
		sfStage:             o.StageName,
		sfAmount:            nil,
		sfProbability:       nil,
		sfActualClose:       nil,
		sfExpectedDate:      nil,
		sfCreated:           nilIfEmpty(o.CreatedDate),
		sfIndustry:          nil,
		sfAccount:           nil,
		sfOwner:             nil,
	}
	if o.Amount != nil {
		rec[sfAmount] = *o.Amount
	}
	if o.Probability != nil {
		rec[sfProbability] = *o.Probability / 100
	}
	if o.IsClosed {
		rec[sfActualClose] = nilIfEmpty(o.CloseDate)
	} else {
		rec[sfExpectedDate] = nilIfEmpty(o.CloseDate)
	}
	if o.Account != nil {
		rec[sfIndustry] = nilIfEmpty(o.Account.Industry)
		rec[sfAccount] = nilIfEmpty(o.Account.Name)
	}
	if o.Owner != nil {
		rec[sfOwner] = nilIfEmpty(o.Owner.Name)
	}
	return rec
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
