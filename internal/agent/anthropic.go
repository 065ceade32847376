package agent

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/appforge/appforge/internal/common/config"
	apperrors "github.com/appforge/appforge/internal/common/errors"
)

// AnthropicCapability streams completions from the Anthropic Messages API.
type AnthropicCapability struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicCapability builds a capability from config. The API key comes
// from config (bound to ANTHROPIC_API_KEY).
func NewAnthropicCapability(cfg config.AgentConfig) *AnthropicCapability {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeoutDuration()))
	}
	return &AnthropicCapability{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
	}
}

// Stream opens a streaming completion for the conversation.
func (c *AnthropicCapability) Stream(ctx context.Context, req Request) (Stream, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, apperrors.UpstreamError("model request failed", err)
	}
	return &anthropicStream{inner: stream}, nil
}

type anthropicStream struct {
	inner *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Recv advances the underlying SSE stream until the next text delta. Events
// that carry no text (message metadata, block boundaries) are skipped.
func (s *anthropicStream) Recv() (string, error) {
	for s.inner.Next() {
		event := s.inner.Current()
		switch v := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch d := v.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					return d.Text, nil
				}
			}
		}
	}
	if err := s.inner.Err(); err != nil {
		return "", apperrors.UpstreamError("model stream failed", err)
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	return s.inner.Close()
}
