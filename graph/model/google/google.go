// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/stategraph-go/graph/model"
)

// generator is the slice of the SDK the adapter needs, kept narrow so tests
// can substitute a fake.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// ChatModel calls Google's Gemini API.
type ChatModel struct {
	gen    generator
	client *genai.Client
}

// NewChatModel creates an adapter for the given API key and model name,
// e.g. "gemini-2.0-flash". Call Close when done to release the underlying
// client.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &model.ModelError{Code: "api_error", Message: err.Error()}
	}
	return &ChatModel{
		gen:    client.GenerativeModel(modelName),
		client: client,
	}, nil
}

// Close releases the underlying API client.
func (c *ChatModel) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Chat implements model.ChatModel. Gemini's generate-content call takes a
// single prompt, so the conversation is rendered as a role-labeled
// transcript.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if len(tools) > 0 {
		return model.ChatOut{}, &model.ModelError{
			Code:    "tools_unsupported",
			Message: "google adapter does not forward tool specifications",
		}
	}

	resp, err := c.gen.GenerateContent(ctx, genai.Text(renderTranscript(messages)))
	if err != nil {
		return model.ChatOut{}, classify(err)
	}

	out := model.ChatOut{}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if chunk, ok := part.(genai.Text); ok {
				text.WriteString(string(chunk))
			}
		}
		out.Text = text.String()
		break
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func renderTranscript(messages []model.Message) string {
	var prompt strings.Builder
	for i, msg := range messages {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		switch msg.Role {
		case model.RoleSystem:
			prompt.WriteString("Instructions: ")
		case model.RoleAssistant:
			prompt.WriteString("Assistant: ")
		default:
			prompt.WriteString("User: ")
		}
		prompt.WriteString(msg.Content)
	}
	return prompt.String()
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return &model.ModelError{Code: "invalid_api_key", Message: msg}
	case strings.Contains(msg, "429"):
		return &model.ModelError{Code: "rate_limited", Message: msg, Retryable: true}
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return &model.ModelError{Code: "api_error", Message: msg, Retryable: true}
	default:
		return &model.ModelError{Code: "api_error", Message: msg}
	}
}
