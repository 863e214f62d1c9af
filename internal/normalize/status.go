package normalize

import (
	"strings"

	"github.com/sells-group/bi-agent/internal/model"
)

// Status maps a free-text status label to a canonical category. Exact
// synonyms win over keyword rules; anything else is unknown.
func (n *Normalizer) Status(raw any) (model.Status, bool) {
	s, ok := stringify(raw, "label", "name", "text", "value")
	if !ok {
		return model.StatusUnknown, false
	}
	label := cleanLabel(s)
	if n.policy.IsNullToken(label) {
		return model.StatusUnknown, false
	}

	if st, ok := n.policy.StatusSynonyms[n.collection][label]; ok {
		return st, true
	}
	if canonical := model.Status(strings.ReplaceAll(label, " ", "_")); canonical.Valid() {
		if canonical == model.StatusUnknown {
			return model.StatusUnknown, false
		}
		return canonical, true
	}
	for _, rule := range n.policy.StatusKeywords[n.collection] {
		if strings.Contains(label, rule.Contains) {
			return rule.Status, true
		}
	}
	return model.StatusUnknown, false
}
