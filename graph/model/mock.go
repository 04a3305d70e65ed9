package model

import (
	"context"
	"strings"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests and examples. Each call
// consumes the next queued ChatOut; when the queue is exhausted the last
// response repeats. It also implements StreamingChatModel by splitting the
// response text into whitespace-delimited tokens.
type MockChatModel struct {
	mu        sync.Mutex
	responses []ChatOut
	err       error
	calls     [][]Message
}

// NewMockChatModel returns a mock that replies with the given responses in
// order.
func NewMockChatModel(responses ...ChatOut) *MockChatModel {
	return &MockChatModel{responses: responses}
}

// NewMockTextModel is a convenience for text-only scripts.
func NewMockTextModel(texts ...string) *MockChatModel {
	responses := make([]ChatOut, len(texts))
	for i, text := range texts {
		responses[i] = ChatOut{Text: text}
	}
	return NewMockChatModel(responses...)
}

// Fail makes every subsequent call return err instead of a response.
func (m *MockChatModel) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, _ []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), messages...))
	if m.err != nil {
		return ChatOut{}, m.err
	}
	if len(m.responses) == 0 {
		return ChatOut{}, nil
	}
	out := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return out, nil
}

// ChatStream implements StreamingChatModel.
func (m *MockChatModel) ChatStream(ctx context.Context, messages []Message, onToken func(token string)) (ChatOut, error) {
	out, err := m.Chat(ctx, messages, nil)
	if err != nil {
		return ChatOut{}, err
	}
	if onToken != nil {
		for _, token := range strings.Fields(out.Text) {
			if err := ctx.Err(); err != nil {
				return ChatOut{}, err
			}
			onToken(token)
		}
	}
	return out, nil
}

// Calls returns a copy of every conversation the mock has received.
func (m *MockChatModel) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([][]Message, len(m.calls))
	copy(calls, m.calls)
	return calls
}
