package narrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Text:  text,
		Usage: anthropic.Usage{InputTokens: 900, OutputTokens: 120},
	}
}

func TestClaudeNarrator_Narrate(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if len(req.System) != 1 || !req.System[0].Cached {
			return false
		}
		last := req.Messages[len(req.Messages)-1]
		return req.Model == "test-model" &&
			req.MaxTokens == 512 &&
			last.Role == "user" &&
			containsAll(last.Content, "Question: how is pipeline?", "₹1.66 Cr weighted")
	})).Return(textResponse("  Pipeline is **₹1.66 Cr** weighted.  "), nil)

	n := NewClaude(mc, ClaudeConfig{Model: "test-model", MaxTokens: 512})
	out, err := n.Narrate(context.Background(), Request{Question: "how is pipeline?", Answer: pipelineAnswer()})
	require.NoError(t, err)
	assert.Equal(t, "Pipeline is **₹1.66 Cr** weighted.", out)
	mc.AssertExpectations(t)
}

func TestClaudeNarrator_FallbackOnError(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	a := pipelineAnswer()
	out, err := NewClaude(mc, ClaudeConfig{}).Narrate(context.Background(), Request{Question: "pipeline", Answer: a})
	require.NoError(t, err)
	assert.Equal(t, Render(a), out)
}

func TestClaudeNarrator_FallbackOnEmptyText(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil)

	a := pipelineAnswer()
	out, err := NewClaude(mc, ClaudeConfig{}).Narrate(context.Background(), Request{Answer: a})
	require.NoError(t, err)
	assert.Equal(t, Render(a), out)
}

func TestClaudeNarrator_ClarificationSkipsModel(t *testing.T) {
	mc := new(mockClient)
	n := NewClaude(mc, ClaudeConfig{})

	out, err := n.Narrate(context.Background(), Request{Answer: engine.Answer{
		ClarificationNeeded: true,
		ClarificationPrompt: "Which board?",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Which board?", out)
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestNewClaude_Defaults(t *testing.T) {
	n := NewClaude(new(mockClient), ClaudeConfig{})
	assert.NotEmpty(t, n.cfg.Model)
	assert.Equal(t, int64(1024), n.cfg.MaxTokens)
}

func TestHistoryMessages(t *testing.T) {
	turn := func(r, c string) model.Turn { return model.Turn{Role: r, Content: c} }

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, historyMessages(nil))
	})

	t.Run("keeps recent alternating turns", func(t *testing.T) {
		var h []model.Turn
		for i := 0; i < 5; i++ {
			h = append(h, turn(model.TurnUser, "q"), turn(model.TurnAssistant, "a"))
		}
		got := historyMessages(h)
		require.Len(t, got, historyLimit)
		assert.Equal(t, "user", got[0].Role)
		assert.Equal(t, "assistant", got[len(got)-1].Role)
	})

	t.Run("drops leading assistant and trailing user", func(t *testing.T) {
		got := historyMessages([]model.Turn{
			turn(model.TurnAssistant, "hello"),
			turn(model.TurnUser, "revenue?"),
			turn(model.TurnAssistant, "₹2.50 Cr"),
			turn(model.TurnUser, "unanswered"),
		})
		require.Len(t, got, 2)
		assert.Equal(t, "revenue?", got[0].Content)
		assert.Equal(t, "₹2.50 Cr", got[1].Content)
	})
}

func TestFacts(t *testing.T) {
	fs := Facts(pipelineAnswer())
	assert.Equal(t, "pipeline", fs.Domain)
	assert.Equal(t, "Q1 FY2026", fs.Window)
	require.Len(t, fs.Metrics, 1)
	assert.Equal(t, "Open Pipeline", fs.Metrics[0].Name)
	assert.Equal(t, 10, fs.Metrics[0].Records)
	assert.Equal(t, "₹90.00 L", fs.Metrics[0].Breakdown["mining"])
	assert.Len(t, fs.Metrics[0].Breakdown, 6)
	require.Len(t, fs.Unavailable, 1)
	assert.Contains(t, fs.Unavailable[0], "pipeline")
	require.Len(t, fs.Caveats, 1)
	assert.Empty(t, fs.Summary)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
