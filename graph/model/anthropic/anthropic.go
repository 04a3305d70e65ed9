// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/stategraph-go/graph/model"
)

const defaultMaxTokens = 4096

// messagesAPI is the slice of the SDK the adapter needs, kept narrow so
// tests can substitute a fake.
type messagesAPI interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// ChatModel calls Anthropic's Messages API.
type ChatModel struct {
	messages  messagesAPI
	model     string
	maxTokens int64
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithMaxTokens overrides the default completion budget of 4096 tokens.
func WithMaxTokens(n int64) Option {
	return func(c *ChatModel) {
		c.maxTokens = n
	}
}

// NewChatModel creates an adapter for the given API key and model name,
// e.g. "claude-sonnet-4-5".
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	c := &ChatModel{
		messages:  &client.Messages,
		model:     modelName,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat implements model.ChatModel. System messages are lifted into the
// request's system prompt; user and assistant turns map directly.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if len(tools) > 0 {
		return model.ChatOut{}, &model.ModelError{
			Code:    "tools_unsupported",
			Message: "anthropic adapter does not forward tool specifications",
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
	}
	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []sdk.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	message, err := c.messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, classify(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return model.ChatOut{
		Text: text.String(),
		Usage: model.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401"):
		return &model.ModelError{Code: "invalid_api_key", Message: msg}
	case strings.Contains(msg, "429"):
		return &model.ModelError{Code: "rate_limited", Message: msg, Retryable: true}
	case strings.Contains(msg, "529"), strings.Contains(msg, "503"):
		return &model.ModelError{Code: "api_error", Message: msg, Retryable: true}
	default:
		return &model.ModelError{Code: "api_error", Message: msg}
	}
}
