// Package policy holds the immutable tables and thresholds that drive
// normalization, linking and metric computation.
package policy

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/model"
)

// KeywordRule maps any status label containing Contains to Status.
type KeywordRule struct {
	Contains string       `yaml:"contains"`
	Status   model.Status `yaml:"status"`
}

// Policy is built once at startup and shared read-only.
type Policy struct {
	StatusSynonyms    map[model.Collection]map[string]model.Status
	StatusKeywords    map[model.Collection][]KeywordRule
	ProbabilityLabels map[string]float64
	RoleHints         map[model.Collection]map[model.Role][]string
	DateFormats       []string
	NullTokens        []string
	Schemas           map[model.Collection]*model.Schema

	LinkSimilarityThreshold float64
	OpenPipelineStatuses    []model.Status
	ActiveWorkOrderStatuses []model.Status
	BacklogStatuses         []model.Status
	BacklogAgeThresholdDays int
	FiscalYearStartMonth    time.Month
	RiskHighRatio           float64
	RiskMediumRatio         float64
	CaveatLimit             int
	SampleSize              int
	TypeThreshold           float64
	Workers                 int
}

// Default returns the built-in policy.
func Default() *Policy {
	return &Policy{
		StatusSynonyms:    defaultSynonyms(),
		StatusKeywords:    defaultKeywords(),
		ProbabilityLabels: map[string]float64{"high": 0.80, "medium": 0.50, "low": 0.25},
		RoleHints:         defaultRoleHints(),
		DateFormats:       append([]string{}, DefaultDateFormats...),
		NullTokens:        []string{"null", "nil", "n/a", "na", "nan", "none", "-", "--"},

		LinkSimilarityThreshold: 0.6,
		OpenPipelineStatuses:    []model.Status{model.StatusOpen, model.StatusNegotiation},
		ActiveWorkOrderStatuses: []model.Status{
			model.StatusOngoing, model.StatusNotStarted, model.StatusPaused,
			model.StatusPartiallyCompleted, model.StatusPending,
		},
		BacklogStatuses:         []model.Status{model.StatusPending, model.StatusQueued},
		BacklogAgeThresholdDays: 30,
		FiscalYearStartMonth:    time.April,
		RiskHighRatio:           1.5,
		RiskMediumRatio:         0.75,
		CaveatLimit:             5,
		SampleSize:              200,
		TypeThreshold:           0.8,
		Workers:                 4,
	}
}

// FromConfig overlays engine settings and the optional tables file onto
// the defaults and validates the result.
func FromConfig(cfg config.EngineConfig) (*Policy, error) {
	p := Default()

	if cfg.LinkSimilarityThreshold > 0 {
		p.LinkSimilarityThreshold = cfg.LinkSimilarityThreshold
	}
	if cfg.BacklogAgeThresholdDays > 0 {
		p.BacklogAgeThresholdDays = cfg.BacklogAgeThresholdDays
	}
	if cfg.FiscalYearStartMonth != 0 {
		p.FiscalYearStartMonth = time.Month(cfg.FiscalYearStartMonth)
	}
	if cfg.RiskHighRatio > 0 {
		p.RiskHighRatio = cfg.RiskHighRatio
	}
	if cfg.RiskMediumRatio > 0 {
		p.RiskMediumRatio = cfg.RiskMediumRatio
	}
	if cfg.CaveatLimit > 0 {
		p.CaveatLimit = cfg.CaveatLimit
	}
	if cfg.Workers > 0 {
		p.Workers = cfg.Workers
	}
	if len(cfg.DateFormats) > 0 {
		p.DateFormats = append([]string{}, cfg.DateFormats...)
	}
	if len(cfg.OpenPipelineStatuses) > 0 {
		p.OpenPipelineStatuses = toStatuses(cfg.OpenPipelineStatuses)
	}
	if len(cfg.ActiveWorkOrderStatuses) > 0 {
		p.ActiveWorkOrderStatuses = toStatuses(cfg.ActiveWorkOrderStatuses)
	}
	if len(cfg.BacklogStatuses) > 0 {
		p.BacklogStatuses = toStatuses(cfg.BacklogStatuses)
	}

	if cfg.TablesFile != "" {
		tables, err := LoadTables(cfg.TablesFile)
		if err != nil {
			return nil, err
		}
		tables.Apply(p)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that thresholds and tables are usable.
func (p *Policy) Validate() error {
	if p.LinkSimilarityThreshold <= 0 || p.LinkSimilarityThreshold > 1 {
		return eris.Errorf("policy: link similarity threshold %.2f out of range (0,1]", p.LinkSimilarityThreshold)
	}
	if p.FiscalYearStartMonth < time.January || p.FiscalYearStartMonth > time.December {
		return eris.Errorf("policy: fiscal year start month %d out of range", p.FiscalYearStartMonth)
	}
	if p.RiskMediumRatio > p.RiskHighRatio {
		return eris.New("policy: risk medium ratio exceeds high ratio")
	}
	if len(p.DateFormats) == 0 {
		return eris.New("policy: no date formats")
	}
	if p.BacklogAgeThresholdDays < 0 {
		return eris.New("policy: negative backlog age threshold")
	}
	if p.Workers < 1 {
		return eris.New("policy: workers must be at least 1")
	}
	for _, set := range [][]model.Status{p.OpenPipelineStatuses, p.ActiveWorkOrderStatuses, p.BacklogStatuses} {
		for _, s := range set {
			if !s.Valid() {
				return eris.Errorf("policy: unknown status category %q", s)
			}
		}
	}
	for c, table := range p.StatusSynonyms {
		for label, s := range table {
			if !s.Valid() {
				return eris.Errorf("policy: %s synonym %q maps to unknown status %q", c, label, s)
			}
		}
	}
	for c, rules := range p.StatusKeywords {
		for _, r := range rules {
			if !r.Status.Valid() || r.Contains == "" {
				return eris.Errorf("policy: invalid %s keyword rule %q", c, r.Contains)
			}
		}
	}
	return nil
}

// Probability resolves a label such as "High" to a probability.
func (p *Policy) Probability(label string) (float64, bool) {
	v, ok := p.ProbabilityLabels[strings.ToLower(strings.TrimSpace(label))]
	return v, ok
}

// IsNullToken reports whether a lowercased, trimmed value means "no value".
func (p *Policy) IsNullToken(v string) bool {
	if v == "" {
		return true
	}
	for _, t := range p.NullTokens {
		if v == t {
			return true
		}
	}
	return false
}

func toStatuses(in []string) []model.Status {
	out := make([]model.Status, 0, len(in))
	for _, s := range in {
		out = append(out, model.Status(strings.ToLower(strings.TrimSpace(s))))
	}
	return out
}
