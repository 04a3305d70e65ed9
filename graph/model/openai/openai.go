// Package openai adapts the OpenAI Chat Completions API to model.ChatModel.
package openai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/stategraph-go/graph/model"
)

// completionsAPI is the slice of the SDK the adapter needs, kept narrow so
// tests can substitute a fake.
type completionsAPI interface {
	New(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// ChatModel calls OpenAI's Chat Completions API.
type ChatModel struct {
	completions completionsAPI
	model       string
}

// NewChatModel creates an adapter for the given API key and model name,
// e.g. "gpt-4o".
func NewChatModel(apiKey, modelName string) *ChatModel {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		completions: &client.Chat.Completions,
		model:       modelName,
	}
}

// Chat implements model.ChatModel.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if len(tools) > 0 {
		return model.ChatOut{}, &model.ModelError{
			Code:    "tools_unsupported",
			Message: "openai adapter does not forward tool specifications",
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, sdk.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, sdk.UserMessage(msg.Content))
		}
	}

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, classify(err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, &model.ModelError{Code: "api_error", Message: "response contained no choices"}
	}

	return model.ChatOut{
		Text: completion.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
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
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return &model.ModelError{Code: "api_error", Message: msg, Retryable: true}
	default:
		return &model.ModelError{Code: "api_error", Message: msg}
	}
}
