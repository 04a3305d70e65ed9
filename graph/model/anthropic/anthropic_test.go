package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/stategraph-go/graph/model"
)

type fakeMessages struct {
	params sdk.MessageNewParams
	resp   *sdk.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.params = params
	return f.resp, f.err
}

func apiMessage(t *testing.T, raw string) *sdk.Message {
	t.Helper()
	var msg sdk.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &msg
}

func TestChat_MapsConversationAndResponse(t *testing.T) {
	fake := &fakeMessages{resp: apiMessage(t, `{
		"content": [{"type": "text", "text": "looks good"}],
		"usage": {"input_tokens": 12, "output_tokens": 5}
	}`)}
	chat := &ChatModel{messages: fake, model: "claude-sonnet-4-5", maxTokens: 1024}

	out, err := chat.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be terse"},
		{Role: model.RoleUser, Content: "review this"},
		{Role: model.RoleAssistant, Content: "which file?"},
		{Role: model.RoleUser, Content: "main.go"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if out.Text != "looks good" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 5 || out.Usage.TotalTokens != 17 {
		t.Errorf("Usage = %+v", out.Usage)
	}

	if got := string(fake.params.Model); got != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", got)
	}
	if fake.params.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", fake.params.MaxTokens)
	}
	// System message is lifted out of the turn list.
	if got := len(fake.params.Messages); got != 3 {
		t.Errorf("turns = %d, want 3", got)
	}
	if len(fake.params.System) != 1 || fake.params.System[0].Text != "be terse" {
		t.Errorf("System = %+v", fake.params.System)
	}
}

func TestChat_RejectsTools(t *testing.T) {
	chat := &ChatModel{messages: &fakeMessages{}, model: "m"}

	_, err := chat.Chat(context.Background(), nil, []model.ToolSpec{{Name: "search"}})
	var modelErr *model.ModelError
	if !errors.As(err, &modelErr) || modelErr.Code != "tools_unsupported" {
		t.Errorf("err = %v, want tools_unsupported", err)
	}
}

func TestChat_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		apiErr    error
		wantCode  string
		retryable bool
	}{
		{"rate limited", errors.New("POST: 429 Too Many Requests"), "rate_limited", true},
		{"bad key", errors.New("POST: 401 Unauthorized"), "invalid_api_key", false},
		{"overloaded", errors.New("POST: 529 Overloaded"), "api_error", true},
		{"other", errors.New("connection reset"), "api_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &ChatModel{messages: &fakeMessages{err: tt.apiErr}, model: "m"}
			_, err := chat.Chat(context.Background(), nil, nil)
			var modelErr *model.ModelError
			if !errors.As(err, &modelErr) {
				t.Fatalf("err = %v, want ModelError", err)
			}
			if modelErr.Code != tt.wantCode || modelErr.Retryable != tt.retryable {
				t.Errorf("got code=%q retryable=%v, want code=%q retryable=%v",
					modelErr.Code, modelErr.Retryable, tt.wantCode, tt.retryable)
			}
		})
	}

	t.Run("context errors pass through", func(t *testing.T) {
		chat := &ChatModel{messages: &fakeMessages{err: context.DeadlineExceeded}, model: "m"}
		if _, err := chat.Chat(context.Background(), nil, nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestNewChatModel_Options(t *testing.T) {
	chat := NewChatModel("key", "claude-sonnet-4-5", WithMaxTokens(256))
	if chat.maxTokens != 256 {
		t.Errorf("maxTokens = %d", chat.maxTokens)
	}
	if chat.messages == nil {
		t.Error("messages API not wired")
	}
}
