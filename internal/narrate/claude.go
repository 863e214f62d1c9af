package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/summary"
	"github.com/sells-group/bi-agent/pkg/anthropic"
)

const systemPrompt = `You are a business intelligence analyst writing for company founders.
You receive a question and a JSON block of figures that were already computed
from the deal pipeline and the work order tracker.

Rules:
- Use only the figures in the JSON. Never compute, estimate or invent a number.
- Quote amounts exactly as given in their "display" form (Indian units, ₹ Cr and ₹ L).
- Lead with the direct answer, then at most four short bullets of context.
- Mention every data caveat listed, briefly.
- If a figure is marked unavailable, say which field is missing instead of guessing.
- Answer in markdown. Do not restate these rules.`

// historyLimit caps the prior turns sent with a question.
const historyLimit = 6

// ClaudeConfig configures ClaudeNarrator.
type ClaudeConfig struct {
	Model     string
	MaxTokens int64
}

// ClaudeNarrator asks Claude to phrase an answer. The model only sees the
// rendered figures, so it cannot change them. Any failure falls back to
// the template narration.
type ClaudeNarrator struct {
	client   anthropic.Client
	cfg      ClaudeConfig
	fallback Narrator
}

// NewClaude returns a ClaudeNarrator.
func NewClaude(client anthropic.Client, cfg ClaudeConfig) *ClaudeNarrator {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &ClaudeNarrator{client: client, cfg: cfg, fallback: TemplateNarrator{}}
}

// Narrate implements Narrator. Clarifications are returned verbatim.
func (n *ClaudeNarrator) Narrate(ctx context.Context, req Request) (string, error) {
	if req.Answer.ClarificationNeeded {
		return req.Answer.ClarificationPrompt, nil
	}

	facts, err := json.MarshalIndent(Facts(req.Answer), "", "  ")
	if err != nil {
		return n.fallback.Narrate(ctx, req)
	}

	msgs := historyMessages(req.History)
	msgs = append(msgs, anthropic.Message{
		Role:    anthropic.RoleUser,
		Content: fmt.Sprintf("Question: %s\n\nComputed figures:\n```json\n%s\n```", req.Question, facts),
	})

	temp := 0.2
	resp, err := n.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       n.cfg.Model,
		MaxTokens:   n.cfg.MaxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    msgs,
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("narrate: claude failed, using template", zap.Error(err))
		return n.fallback.Narrate(ctx, req)
	}
	resp.Usage.Log(n.cfg.Model, "narrate")

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		zap.L().Warn("narrate: claude returned no text, using template", zap.String("stop_reason", resp.StopReason))
		return n.fallback.Narrate(ctx, req)
	}
	return text, nil
}

// historyMessages keeps the last turns, starting on a user turn as the
// Messages API requires.
func historyMessages(history []model.Turn) []anthropic.Message {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for len(history) > 0 && history[0].Role != model.TurnUser {
		history = history[1:]
	}
	out := make([]anthropic.Message, 0, len(history)+1)
	for _, t := range history {
		role := anthropic.RoleUser
		if t.Role == model.TurnAssistant {
			role = anthropic.RoleAssistant
		}
		out = append(out, anthropic.Message{Role: role, Content: t.Content})
	}
	// The question is appended as a user turn; drop a trailing user turn so
	// roles alternate.
	if len(out) > 0 && out[len(out)-1].Role == anthropic.RoleUser {
		out = out[:len(out)-1]
	}
	return out
}

// FactSheet is the figure set handed to a language model.
type FactSheet struct {
	Domain      string       `json:"domain"`
	Window      string       `json:"window"`
	Metrics     []MetricFact `json:"metrics,omitempty"`
	Unavailable []string     `json:"unavailable,omitempty"`
	Summary     string       `json:"leadership_update,omitempty"`
	Caveats     []string     `json:"caveats,omitempty"`
}

// MetricFact is one computed figure with its display form.
type MetricFact struct {
	Name      string            `json:"name"`
	Display   string            `json:"display"`
	Records   int               `json:"records"`
	Breakdown map[string]string `json:"breakdown,omitempty"`
}

// Facts flattens an answer into display strings.
func Facts(a engine.Answer) FactSheet {
	fs := FactSheet{Domain: string(a.Domain), Window: windowLabel(a.Window)}
	for _, m := range a.Metrics {
		f := MetricFact{Name: MetricLabel(m.Name), Display: metricValue(m), Records: m.Count}
		if len(m.Breakdown) > 0 {
			f.Breakdown = make(map[string]string, len(m.Breakdown))
			for _, b := range m.Breakdown {
				f.Breakdown[b.Key] = bucketValue(m.Unit, b)
			}
		}
		fs.Metrics = append(fs.Metrics, f)
	}
	for _, dse := range a.Unavailable {
		fs.Unavailable = append(fs.Unavailable, dse.Error())
	}
	if a.Summary != nil {
		fs.Summary = Render(a)
	}
	for _, c := range a.Caveats {
		fs.Caveats = append(fs.Caveats, summary.CaveatNote(c))
	}
	return fs
}
