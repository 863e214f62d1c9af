// Package sanitize turns raw collections into clean, typed records with an
// explicit excluded partition and per-field missing-data accounting.
package sanitize

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/normalize"
	"github.com/sells-group/bi-agent/internal/policy"
)

// revenueRoles must be non-negative.
var revenueRoles = map[model.Role]bool{
	model.RoleRevenue: true,
	model.RoleBilled:  true,
}

// Sanitizer is stateless apart from its immutable policy.
type Sanitizer struct {
	policy *policy.Policy
}

// New returns a Sanitizer.
func New(p *policy.Policy) *Sanitizer {
	return &Sanitizer{policy: p}
}

type slot struct {
	record  model.CleanRecord
	missing []model.Role
}

// Sanitize normalizes every field of every record. Records missing a
// required identity role, header rows and repeated ids are excluded; the
// rest are retained with defaults and validity flags. The returned
// collection always satisfies |Excluded| + |Records| = |raw.Records|.
func (s *Sanitizer) Sanitize(raw model.RawCollection) (model.CleanCollection, model.CaveatReport, error) {
	start := time.Now()

	declared := raw.Schema
	if declared == nil {
		declared = s.policy.Schemas[raw.Collection]
	}
	schema := InferSchema(s.policy, raw.Collection, raw.Records, declared)

	if missing := schema.Missing(schema.Required...); len(missing) > 0 {
		return model.CleanCollection{}, model.CaveatReport{},
			model.NewDataShapeError(raw.Collection, "identity", missing...)
	}

	n := normalize.New(s.policy, raw.Collection)
	slots := make([]slot, len(raw.Records))

	var g errgroup.Group
	g.SetLimit(s.policy.Workers)
	for i, rec := range raw.Records {
		g.Go(func() error {
			slots[i] = s.cleanRecord(n, schema, rec)
			return nil
		})
	}
	_ = g.Wait()

	out := model.CleanCollection{Collection: raw.Collection, Schema: schema}
	excluded := map[model.ExclusionReason]int{}
	seen := make(map[string]bool, len(slots))
	header := cleanTitle(schema.FieldFor(model.RoleName))

	for i, sl := range slots {
		ex := model.ExcludedRecord{Index: i, ID: sl.record.ID}
		switch {
		case len(sl.missing) > 0:
			ex.Reason = model.ExcludedMissingIdentity
			ex.Roles = sl.missing
		case header != "" && sl.record.Name == header:
			ex.Reason = model.ExcludedHeaderRow
		case seen[sl.record.ID]:
			ex.Reason = model.ExcludedDuplicateID
		default:
			seen[sl.record.ID] = true
			out.Records = append(out.Records, sl.record)
			continue
		}
		excluded[ex.Reason]++
		out.Excluded = append(out.Excluded, ex)
	}

	report := s.caveats(out, excluded)

	zap.L().Debug("sanitize: collection cleaned",
		zap.String("collection", string(raw.Collection)),
		zap.Int("raw", len(raw.Records)),
		zap.Int("retained", len(out.Records)),
		zap.Int("excluded", len(out.Excluded)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return out, report, nil
}

func (s *Sanitizer) cleanRecord(n *normalize.Normalizer, schema *model.Schema, rec model.RawRecord) slot {
	cr := model.CleanRecord{
		Numeric:  map[string]float64{},
		Dates:    map[string]time.Time{},
		Text:     map[string]string{},
		Validity: make(map[string]bool, len(schema.Fields)),
		Status:   model.StatusUnknown,
		Sector:   model.Unspecified,
	}

	for _, f := range schema.Fields {
		raw := rec[f.Name]
		role, _ := schema.RoleOf(f.Name)

		if role == model.RoleProbability {
			cr.Numeric[f.Name], cr.Validity[f.Name] = s.probability(n, raw)
			continue
		}

		v := n.Normalize(raw, f.Type)
		if revenueRoles[role] && v.Valid && v.Number < 0 {
			v.Number, v.Valid = 0, false
		}

		switch v.Type {
		case model.TypeNumeric:
			cr.Numeric[f.Name] = v.Number
		case model.TypeDate:
			if v.Valid {
				cr.Dates[f.Name] = v.Date
			}
		case model.TypeStatus:
			cr.Text[f.Name] = string(v.Status)
		default:
			cr.Text[f.Name] = v.Text
		}
		cr.Validity[f.Name] = v.Valid
	}

	cr.ID = cr.Text[schema.FieldFor(model.RoleID)]
	if f := schema.FieldFor(model.RoleName); f != "" {
		cr.Name = cr.Text[f]
	}
	if f := schema.FieldFor(model.RoleSector); f != "" {
		cr.Sector = cr.Text[f]
	}
	cr.Status = recordStatus(schema, &cr)

	var missing []model.Role
	for _, role := range schema.Required {
		if !cr.Valid(schema.FieldFor(role)) {
			missing = append(missing, role)
		}
	}
	return slot{record: cr, missing: missing}
}

// recordStatus takes the status field, falling back to the stage field
// when the status label could not be mapped to a known category.
func recordStatus(schema *model.Schema, cr *model.CleanRecord) model.Status {
	for _, role := range []model.Role{model.RoleStatus, model.RoleStage} {
		f := schema.FieldFor(role)
		if f == "" || !cr.Valid(f) {
			continue
		}
		if st := model.Status(cr.Text[f]); st.Valid() && st != model.StatusUnknown {
			return st
		}
	}
	return model.StatusUnknown
}

// probability accepts fractions, percentages and policy labels.
func (s *Sanitizer) probability(n *normalize.Normalizer, raw any) (float64, bool) {
	if v, ok := n.Number(raw); ok {
		if v > 1 {
			v /= 100
		}
		if v < 0 || v > 1 {
			return 0, false
		}
		return v, true
	}
	if str, ok := raw.(string); ok {
		if v, ok := s.policy.Probability(str); ok {
			return v, true
		}
	}
	return 0, false
}

func (s *Sanitizer) caveats(c model.CleanCollection, excluded map[model.ExclusionReason]int) model.CaveatReport {
	report := model.CaveatReport{Excluded: map[model.Collection]map[model.ExclusionReason]int{}}
	if len(excluded) > 0 {
		report.Excluded[c.Collection] = excluded
	}

	total := len(c.Records)
	for _, f := range c.Schema.Fields {
		defaulted := 0
		for i := range c.Records {
			if !c.Records[i].Validity[f.Name] {
				defaulted++
			}
		}
		role, _ := c.Schema.RoleOf(f.Name)
		report.Fields = append(report.Fields, model.NewFieldCaveat(c.Collection, f.Name, role, total, defaulted))
	}
	report.Sort()
	return report
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
