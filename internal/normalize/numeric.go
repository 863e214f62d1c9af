package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// currencyWords are stripped from either end of a numeric string.
var currencyWords = []string{"rs.", "rs", "inr", "usd", "eur", "gbp"}

// multipliers are matched as suffixes, longest first.
var multipliers = []struct {
	suffix string
	factor float64
}{
	{"crore", 1e7},
	{"lakh", 1e5},
	{"cr", 1e7},
	{"mn", 1e6},
	{"mm", 1e6},
	{"bn", 1e9},
	{"k", 1e3},
	{"m", 1e6},
	{"b", 1e9},
	{"l", 1e5},
}

// Number parses a monetary or plain numeric value. "10k" is 10000,
// "₹10,000" is 10000, "1.2L" is 120000.
func (n *Normalizer) Number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	}

	s, ok := stringify(raw, "value", "number", "text")
	if !ok {
		return 0, false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if n.policy.IsNullToken(s) {
		return 0, false
	}
	return parseAmount(s)
}

func parseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Sc, r):
		case r == ',' || r == '\'' || r == '_' || unicode.IsSpace(r):
		default:
			b.WriteRune(r)
		}
	}
	s = stripCurrencyWords(b.String())
	s = strings.TrimSuffix(s, "%")

	factor := 1.0
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			factor = m.factor
			s = strings.TrimSuffix(s, m.suffix)
			break
		}
	}
	if s == "" || !looksNumeric(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f * factor)
}

func stripCurrencyWords(s string) string {
	for _, w := range currencyWords {
		if strings.HasPrefix(s, w) {
			s = s[len(w):]
			break
		}
	}
	for _, w := range currencyWords {
		if strings.HasSuffix(s, w) {
			s = s[:len(s)-len(w)]
			break
		}
	}
	return s
}

// looksNumeric rejects forms ParseFloat accepts but exports never mean,
// such as "inf", "nan" and hex floats.
func looksNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		case (r == '-' || r == '+') && i == 0:
		case r == 'e' && digits > 0:
		case (r == '-' || r == '+') && i > 0 && s[i-1] == 'e':
		default:
			return false
		}
	}
	return digits > 0
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
