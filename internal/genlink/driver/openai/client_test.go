package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		format, ok := payload["response_format"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"ok\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	resp, err := client.Complete(context.Background(), &driver.Request{
		Model: "test-model",
		Messages: []content.Message{
			{Role: "system", Content: []content.ContentBlock{content.Text("sys")}},
			{Role: "user", Content: []content.ContentBlock{content.Text("usr")}},
		},
		ResponseFormat: &driver.ResponseFormat{Type: "json_object"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	require.Equal(t, 3, resp.Usage.TotalTokens)
	require.Len(t, resp.Content, 1)
	require.True(t, strings.Contains(resp.Content[0].Text, "title"))
}

func TestClientSendsJSONSchemaFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		format, ok := payload["response_format"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "json_schema", format["type"])
		spec, ok := format["json_schema"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "element_fields", spec["name"])
		require.Equal(t, true, spec["strict"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "test-model",
		Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("usr")}}},
		ResponseFormat: &driver.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &driver.JSONSchema{
				Name:   "element_fields",
				Strict: true,
				Schema: map[string]any{"type": "object"},
			},
		},
	})
	require.NoError(t, err)
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "nope")
}

func TestClientCapturesRetryAfterOn429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}}})
	require.Error(t, err)

	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.True(t, perr.IsRateLimit())
	require.True(t, perr.IsTransient())
	require.Equal(t, 17*time.Second, perr.RetryAfter)
}
