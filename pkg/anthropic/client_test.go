package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// server replies with reply and hands the decoded request body to seen.
func server(t *testing.T, status int, reply map[string]any, seen func(map[string]any)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if seen != nil {
			seen(body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply) //nolint:errcheck
	}))
	t.Cleanup(ts.Close)
	return ts
}

func message(content ...map[string]any) map[string]any {
	return map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"content":     content,
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                900,
			"output_tokens":               120,
			"cache_creation_input_tokens": 700,
			"cache_read_input_tokens":     0,
		},
	}
}

func TestCreateMessage(t *testing.T) {
	var body map[string]any
	ts := server(t, http.StatusOK, message(
		map[string]any{"type": "text", "text": "Pipeline is healthy."},
		map[string]any{"type": "text", "text": "Backlog is low."},
	), func(b map[string]any) { body = b })

	temp := 0.2
	c := NewClient("test-key", option.WithBaseURL(ts.URL), option.WithMaxRetries(0))
	resp, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		System:    CachedSystem("You narrate computed metrics."),
		Messages: []Message{
			{Role: RoleUser, Content: "revenue?"},
			{Role: RoleAssistant, Content: "₹2.50 Cr"},
			{Role: RoleUser, Content: "and pipeline?"},
		},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pipeline is healthy.\nBacklog is low.", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 900, OutputTokens: 120, CacheWriteTokens: 700}, resp.Usage)

	assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
	assert.InDelta(t, 256, body["max_tokens"], 1e-9)
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{RoleUser, RoleAssistant, RoleUser}, roles)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	assert.Equal(t, "You narrate computed metrics.", block["text"])
	cc, ok := block["cache_control"].(map[string]any)
	require.True(t, ok, "cached block carries a breakpoint")
	assert.Equal(t, "ephemeral", cc["type"])
	assert.Equal(t, "1h", cc["ttl"])
}

func TestCreateMessage_SkipsNonTextBlocks(t *testing.T) {
	ts := server(t, http.StatusOK, message(
		map[string]any{"type": "tool_use", "id": "tu_1", "name": "lookup", "input": map[string]any{}},
		map[string]any{"type": "text", "text": "Done."},
	), func(b map[string]any) {
		_, hasTemp := b["temperature"]
		assert.False(t, hasTemp)
		_, hasSystem := b["system"]
		assert.False(t, hasSystem)
	})

	c := NewClient("test-key", option.WithBaseURL(ts.URL), option.WithMaxRetries(0))
	resp, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text)
}

func TestCreateMessage_Error(t *testing.T) {
	ts := server(t, http.StatusInternalServerError, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "api_error", "message": "Internal server error"},
	}, nil)

	c := NewClient("test-key", option.WithBaseURL(ts.URL), option.WithMaxRetries(0))
	_, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestCachedSystem(t *testing.T) {
	assert.Equal(t, []SystemBlock{{Text: "prompt", Cached: true}}, CachedSystem("prompt"))
}

func TestUsage_Log(t *testing.T) {
	assert.NotPanics(t, func() {
		Usage{InputTokens: 100, OutputTokens: 50}.Log("claude-haiku-4-5-20251001", "narrate")
		Usage{}.Log("", "")
	})
}
