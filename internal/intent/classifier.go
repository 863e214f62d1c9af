// Package intent classifies free-text business questions into metric
// domains with a deterministic phrase table.
package intent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sells-group/bi-agent/internal/model"
)

// Domain is the business area a question is about.
type Domain string

const (
	DomainRevenue    Domain = "revenue"
	DomainPipeline   Domain = "pipeline"
	DomainOperations Domain = "operations"
	DomainCrossboard Domain = "crossboard"
	DomainLeadership Domain = "leadership"
	DomainAmbiguous  Domain = "ambiguous"
)

// Filters are the window and grouping extracted from a question. An empty
// Window means all time.
type Filters struct {
	Window  string        `json:"window,omitempty"`
	GroupBy model.GroupBy `json:"group_by,omitempty"`
}

// Match is a domain phrase found in a question.
type Match struct {
	Domain Domain `json:"domain"`
	Phrase string `json:"phrase"`
}

// Intent is the classification of one question.
type Intent struct {
	Domain              Domain  `json:"domain"`
	Filters             Filters `json:"filters"`
	ClarificationNeeded bool    `json:"clarification_needed"`
	ClarificationPrompt string  `json:"clarification_prompt,omitempty"`
	Matches             []Match `json:"matches,omitempty"`
}

// Metrics returns the catalog metrics that answer the intent's domain.
// Leadership and ambiguous intents have none.
func (i Intent) Metrics() []model.MetricName {
	return domainMetrics[i.Domain]
}

type kind int

const (
	kindDomain kind = iota
	kindWindow
	kindGroup
)

type phrase struct {
	words  []string
	text   string
	kind   kind
	domain Domain
	window string
	group  model.GroupBy
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	phrases []phrase
}

// New builds a Classifier from the built-in phrase tables.
func New() *Classifier {
	var ps []phrase
	for d, list := range domainPhrases {
		for _, p := range list {
			ps = append(ps, phrase{words: tokenize(p), text: p, kind: kindDomain, domain: d})
		}
	}
	for w, list := range windowPhrases {
		for _, p := range list {
			ps = append(ps, phrase{words: tokenize(p), text: p, kind: kindWindow, window: w})
		}
	}
	for g, list := range groupPhrases {
		for _, p := range list {
			ps = append(ps, phrase{words: tokenize(p), text: p, kind: kindGroup, group: g})
		}
	}
	// Longest phrases consume their words first.
	sort.Slice(ps, func(i, j int) bool {
		if len(ps[i].words) != len(ps[j].words) {
			return len(ps[i].words) > len(ps[j].words)
		}
		return ps[i].text < ps[j].text
	})
	return &Classifier{phrases: ps}
}

type score struct {
	longest int
	words   int
}

// Classify maps a question to a domain. No domain evidence, or a tie
// between the two best domains, yields an ambiguous intent with a
// clarification prompt.
func (c *Classifier) Classify(question string) Intent {
	tokens := tokenize(question)
	used := make([]bool, len(tokens))

	var in Intent
	scores := map[Domain]*score{}
	for _, p := range c.phrases {
		for _, at := range occurrences(tokens, used, p.words) {
			for k := range p.words {
				used[at+k] = true
			}
			switch p.kind {
			case kindWindow:
				if in.Filters.Window == "" {
					in.Filters.Window = p.window
				}
			case kindGroup:
				if in.Filters.GroupBy == model.GroupNone {
					in.Filters.GroupBy = p.group
				}
			case kindDomain:
				s := scores[p.domain]
				if s == nil {
					s = &score{}
					scores[p.domain] = s
				}
				s.longest = max(s.longest, len(p.words))
				s.words += len(p.words)
				in.Matches = append(in.Matches, Match{Domain: p.domain, Phrase: p.text})
			}
		}
	}

	in.Domain = pick(scores)
	if in.Domain == DomainAmbiguous {
		in.ClarificationNeeded = true
		in.ClarificationPrompt = clarification(question)
	}
	return in
}

// ClassifyFollowUp classifies a reply to a clarification. The reply is
// classified on its own first; when that is still ambiguous it is joined
// with the question that prompted the clarification. Filters missing from
// the reply carry over from that question.
func (c *Classifier) ClassifyFollowUp(question string, history []model.Turn) Intent {
	prev, ok := clarifiedQuestion(history)
	if !ok {
		return c.Classify(question)
	}

	in := c.Classify(question)
	if in.Domain == DomainAmbiguous {
		in = c.Classify(prev + " " + question)
	}
	earlier := c.Classify(prev)
	if in.Filters.Window == "" {
		in.Filters.Window = earlier.Filters.Window
	}
	if in.Filters.GroupBy == model.GroupNone {
		in.Filters.GroupBy = earlier.Filters.GroupBy
	}
	return in
}

// clarifiedQuestion returns the user question preceding the last assistant
// turn when that turn asked for clarification.
func clarifiedQuestion(history []model.Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != model.TurnAssistant {
			continue
		}
		if !isClarification(history[i].Content) {
			return "", false
		}
		for j := i - 1; j >= 0; j-- {
			if history[j].Role == model.TurnUser {
				return history[j].Content, true
			}
		}
		return "", false
	}
	return "", false
}

func isClarification(content string) bool {
	lower := strings.ToLower(content)
	for _, m := range clarificationMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// pick returns the best-scoring domain, or ambiguous when there is no
// evidence or the top two tie.
func pick(scores map[Domain]*score) Domain {
	if len(scores) == 0 {
		return DomainAmbiguous
	}
	ranked := make([]Domain, 0, len(scores))
	for d := range scores {
		ranked = append(ranked, d)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := scores[ranked[i]], scores[ranked[j]]
		if a.longest != b.longest {
			return a.longest > b.longest
		}
		if a.words != b.words {
			return a.words > b.words
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > 1 && *scores[ranked[0]] == *scores[ranked[1]] {
		return DomainAmbiguous
	}
	return ranked[0]
}

func clarification(question string) string {
	q := strings.ToLower(question)
	switch {
	case containsAny(q, howAreWeDoingWords):
		return promptHowAreWeDoing
	case containsAny(q, revenueWords):
		return promptRevenue
	case containsAny(q, timeWords):
		return promptTime
	default:
		return promptGeneric
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// occurrences returns the start positions of unconsumed, non-overlapping
// matches of words in tokens.
func occurrences(tokens []string, used []bool, words []string) []int {
	var out []int
	n := len(words)
	for i := 0; i+n <= len(tokens); i++ {
		ok := true
		for k := 0; k < n; k++ {
			if used[i+k] || tokens[i+k] != words[k] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, i)
			i += n - 1
		}
	}
	return out
}

// tokenize lowercases s and splits it into letter and digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
