package google

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/dshills/stategraph-go/graph/model"
)

type fakeGenerator struct {
	prompt string
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	for _, part := range parts {
		if text, ok := part.(genai.Text); ok {
			f.prompt += string(text)
		}
	}
	return f.resp, f.err
}

func TestChat_MapsConversationAndResponse(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []genai.Part{genai.Text("ship "), genai.Text("it")},
			},
		}},
		UsageMetadata: &genai.UsageMetadata{
			PromptTokenCount:     30,
			CandidatesTokenCount: 2,
			TotalTokenCount:      32,
		},
	}}
	chat := &ChatModel{gen: fake}

	out, err := chat.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be terse"},
		{Role: model.RoleUser, Content: "review this"},
		{Role: model.RoleAssistant, Content: "which file?"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if out.Text != "ship it" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Usage.InputTokens != 30 || out.Usage.OutputTokens != 2 || out.Usage.TotalTokens != 32 {
		t.Errorf("Usage = %+v", out.Usage)
	}
	for _, want := range []string{"Instructions: be terse", "User: review this", "Assistant: which file?"} {
		if !strings.Contains(fake.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, fake.prompt)
		}
	}
}

func TestChat_EmptyCandidates(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	chat := &ChatModel{gen: fake}

	out, err := chat.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out.Text != "" {
		t.Errorf("Text = %q, want empty", out.Text)
	}
}

func TestChat_RejectsTools(t *testing.T) {
	chat := &ChatModel{gen: &fakeGenerator{}}

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
		{"bad key", errors.New("googleapi: Error 403: API key not valid"), "invalid_api_key", false},
		{"rate limited", errors.New("googleapi: Error 429: quota exceeded"), "rate_limited", true},
		{"server error", errors.New("googleapi: Error 500: internal"), "api_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &ChatModel{gen: &fakeGenerator{err: tt.apiErr}}
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
}

func TestClose_NilClient(t *testing.T) {
	chat := &ChatModel{gen: &fakeGenerator{}}
	if err := chat.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
