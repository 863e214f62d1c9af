package link

import (
	"regexp"
	"strings"
)

// legalSuffixes are stripped from the end of a name before matching.
var legalSuffixes = []string{
	" pvt ltd", " pvt. ltd.", " private limited",
	" llc", " l.l.c.",
	" inc", " inc.", " incorporated",
	" corp", " corp.", " corporation",
	" ltd", " ltd.", " limited",
	" llp", " l.l.p.",
	" plc",
	" co", " co.",
}

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeName standardizes a deal or work order name for matching:
// lowercase, "&" spelled out, legal suffixes removed, punctuation dropped
// and whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "&", " and ")
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = punctRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// tokenSet returns the distinct words of a normalized name.
func tokenSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// jaccard is the share of words two names have in common.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
