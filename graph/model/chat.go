// Package model provides the LLM collaborator boundary for stategraph nodes.
package model

import "context"

// ChatModel is the provider-neutral chat interface nodes call into.
//
// Implementations handle provider authentication, convert Message values to
// the provider's wire format, parse responses back into ChatOut, and respect
// context cancellation. Engine-level retry policies can inspect adapter
// errors through ModelError.Retryable.
//
// Example:
//
//	chat := anthropic.NewChatModel(apiKey, "claude-sonnet-4-5")
//	out, err := chat.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize this diff."},
//	}, nil)
type ChatModel interface {
	// Chat sends the conversation and returns the model's reply. tools may
	// be nil; adapters that do not forward tool specifications reject a
	// non-empty tools slice with a ModelError.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// StreamingChatModel extends ChatModel with incremental token delivery,
// feeding the engine's pass-through token events.
type StreamingChatModel interface {
	ChatModel

	// ChatStream behaves like Chat but invokes onToken for each generated
	// chunk before returning the assembled ChatOut.
	ChatStream(ctx context.Context, messages []Message, onToken func(token string)) (ChatOut, error)
}

// Message is one turn in a conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard conversation roles, aligned with the major providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may call. Schema follows JSON Schema.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// ChatOut is a model reply: text, tool calls, or both.
type ChatOut struct {
	// Text is the generated response. Empty when the model only calls
	// tools.
	Text string

	// ToolCalls lists requested tool invocations.
	ToolCalls []ToolCall

	// Usage reports token consumption for this exchange.
	Usage Usage
}

// Usage is the token accounting for one exchange. Adapters fill what their
// provider reports; zero values mean "not reported".
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ModelError is a provider failure normalized across adapters.
type ModelError struct {
	// Code is a machine-readable classification: "invalid_api_key",
	// "rate_limited", "timeout", "tools_unsupported", "api_error".
	Code string

	// Message is the human-readable description.
	Message string

	// Retryable reports whether the failure is transient.
	Retryable bool
}

func (e *ModelError) Error() string {
	return e.Code + ": " + e.Message
}

// IsRetryable reports whether err is a transient ModelError. Suitable as a
// RetryPolicy predicate.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	modelErr, ok := err.(*ModelError)
	return ok && modelErr.Retryable
}
