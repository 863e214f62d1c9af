package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/bi-agent/internal/model"
)

// Text returns NFKC-normalized, lowercased, whitespace-collapsed text, or
// model.Unspecified when the value is empty or a null token.
func (n *Normalizer) Text(raw any) (string, bool) {
	s, ok := stringify(raw, "text", "name", "value", "label")
	if !ok {
		return model.Unspecified, false
	}
	// Casers carry state, so one per call keeps the normalizer shareable.
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))
	s = strings.Join(strings.Fields(s), " ")
	if s == model.Unspecified || n.policy.IsNullToken(s) {
		return model.Unspecified, false
	}
	return s, true
}

// Identifier trims an id without changing its case.
func (n *Normalizer) Identifier(raw any) (string, bool) {
	s, ok := stringify(raw, "id", "value", "text")
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || n.policy.IsNullToken(strings.ToLower(s)) {
		return "", false
	}
	return s, true
}
