package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestCompleteSendsRequestAndParsesResponse(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NotEmpty(t, r.Header.Get("Anthropic-Version"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "{\"title\": \"Ship faster\"}"}],
			"model": "claude-3-5-haiku-latest",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 12}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	temp := 0.2
	resp, err := client.Complete(context.Background(), &driver.Request{
		Model:       "claude-3-5-haiku-latest",
		Temperature: &temp,
		Messages: []content.Message{
			{Role: "system", Content: []content.ContentBlock{content.Text("You write slide copy.")}},
			{Role: "user", Content: []content.ContentBlock{content.Text("Fill the fields.")}},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "claude-3-5-haiku-latest", captured["model"])
	require.Equal(t, float64(defaultMaxTokens), captured["max_tokens"])
	require.Equal(t, "You write slide copy.", captured["system"])
	require.InDelta(t, 0.2, captured["temperature"], 0.0001)

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	require.Equal(t, "user", first["role"])

	require.Len(t, resp.Content, 1)
	require.Equal(t, `{"title": "Ship faster"}`, resp.Content[0].Text)
	require.Equal(t, "end_turn", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	require.Equal(t, 40, resp.Usage.PromptTokens)
	require.Equal(t, 12, resp.Usage.CompletionTokens)
	require.Equal(t, 52, resp.Usage.TotalTokens)
}

func TestCompleteHonorsMaxTokensOverride(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_02",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "ok"}],
			"model": "claude-3-5-haiku-latest",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	maxTokens := 256
	_, err := client.Complete(context.Background(), &driver.Request{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: &maxTokens,
		Messages:  []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}},
	})
	require.NoError(t, err)
	require.Equal(t, float64(256), captured["max_tokens"])
}

func TestCompleteMapsRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}},
	})
	require.Error(t, err)

	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "anthropic", perr.Provider)
	require.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	require.True(t, perr.IsRateLimit())
	require.True(t, perr.IsTransient())
	require.Contains(t, perr.Message, "slow down")
}

func TestBuildMessagesRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		req  *driver.Request
		want string
	}{
		{
			name: "missing model",
			req: &driver.Request{
				Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}},
			},
			want: "model is required",
		},
		{
			name: "missing messages",
			req:  &driver.Request{Model: "claude-3-5-haiku-latest"},
			want: "messages are required",
		},
		{
			name: "unsupported role",
			req: &driver.Request{
				Model:    "claude-3-5-haiku-latest",
				Messages: []content.Message{{Role: "tool", Content: []content.ContentBlock{content.Text("hi")}}},
			},
			want: "unsupported message role",
		},
		{
			name: "system only",
			req: &driver.Request{
				Model:    "claude-3-5-haiku-latest",
				Messages: []content.Message{{Role: "system", Content: []content.ContentBlock{content.Text("hi")}}},
			},
			want: "at least one user message",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildMessagesRequest(tc.req)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
