package normalize

import (
	"strings"
	"time"
)

// Date parses raw against the policy's ordered layouts and returns the UTC
// midnight of the calendar date it names. Platform JSON such as
// {"date":"2025-12-31"} and Notion's {"start":...} are unwrapped first.
func (n *Normalizer) Date(raw any) (time.Time, bool) {
	if t, ok := raw.(time.Time); ok {
		if t.IsZero() {
			return time.Time{}, false
		}
		return civil(t), true
	}

	s, ok := stringify(raw, "date", "start", "value", "text")
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if n.policy.IsNullToken(strings.ToLower(s)) {
		return time.Time{}, false
	}

	for _, layout := range n.policy.DateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), true
		}
	}
	return time.Time{}, false
}

// civil drops the clock, keeping the date as written in t's own zone.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
