package policy

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bi-agent/internal/model"
)

// Tables is the on-disk overlay for the lookup tables. Labels may contain
// dots and spaces, so they are kept out of the viper config.
type Tables struct {
	StatusSynonyms    map[model.Collection]map[string]model.Status `yaml:"status_synonyms"`
	StatusKeywords    map[model.Collection][]KeywordRule           `yaml:"status_keywords"`
	ProbabilityLabels map[string]float64                           `yaml:"probability_labels"`
	RoleHints         map[model.Collection]map[model.Role][]string `yaml:"role_hints"`
	NullTokens        []string                                     `yaml:"null_tokens"`
	Schemas           map[model.Collection]*model.Schema           `yaml:"schemas"`
}

// LoadTables reads a tables file. The YAML has a top-level "tables" key.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read tables %s", path)
	}

	var wrapper struct {
		Tables Tables `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "policy: parse tables")
	}
	return &wrapper.Tables, nil
}

// Apply overlays t onto p. Synonyms and probability labels merge; keyword
// rules, role hints and null tokens replace per key.
func (t *Tables) Apply(p *Policy) {
	for c, table := range t.StatusSynonyms {
		if p.StatusSynonyms[c] == nil {
			p.StatusSynonyms[c] = map[string]model.Status{}
		}
		for label, s := range table {
			p.StatusSynonyms[c][strings.ToLower(strings.TrimSpace(label))] = s
		}
	}
	for c, rules := range t.StatusKeywords {
		p.StatusKeywords[c] = rules
	}
	for label, v := range t.ProbabilityLabels {
		p.ProbabilityLabels[strings.ToLower(label)] = v
	}
	for c, hints := range t.RoleHints {
		if p.RoleHints[c] == nil {
			p.RoleHints[c] = map[model.Role][]string{}
		}
		for role, h := range hints {
			p.RoleHints[c][role] = h
		}
	}
	if len(t.NullTokens) > 0 {
		p.NullTokens = t.NullTokens
	}
	for c, s := range t.Schemas {
		if s == nil {
			continue
		}
		if p.Schemas == nil {
			p.Schemas = map[model.Collection]*model.Schema{}
		}
		p.Schemas[c] = model.NewSchema(s.Fields, s.Roles, s.Required)
	}
}
