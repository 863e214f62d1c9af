// Package anthropic is the narrow slice of the Messages API used to narrate
// computed answers.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Roles of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client sends one narration request.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single-shot narration call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is a system prompt block. Cached blocks carry a one-hour
// cache breakpoint.
type SystemBlock struct {
	Text   string
	Cached bool
}

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// MessageResponse holds the joined text of a reply.
type MessageResponse struct {
	Text       string
	StopReason string
	Usage      Usage
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Log records token usage for a call made in phase.
func (u Usage) Log(model, phase string) {
	zap.L().Info("anthropic: token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheWriteTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
	)
}

// CachedSystem returns text as a single cached system block.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{Text: text, Cached: true}}
}

type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by the SDK. Extra request options are
// passed through, e.g. option.WithBaseURL in tests.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, newParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return newResponse(msg), nil
}

func newParams(req MessageRequest) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  make([]sdk.MessageParam, len(req.Messages)),
	}
	for i, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages[i] = sdk.NewAssistantMessage(block)
		} else {
			params.Messages[i] = sdk.NewUserMessage(block)
		}
	}
	for _, b := range req.System {
		block := sdk.TextBlockParam{Text: b.Text}
		if b.Cached {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
			block.CacheControl.TTL = sdk.CacheControlEphemeralTTL("1h")
		}
		params.System = append(params.System, block)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params
}

// newResponse joins the text blocks of msg; tool and thinking blocks are
// skipped.
func newResponse(msg *sdk.Message) *MessageResponse {
	var parts []string
	for _, b := range msg.Content {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return &MessageResponse{
		Text:       strings.Join(parts, "\n"),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
