package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.LLMConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		Model:          "gpt-4o-mini",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	return client
}

func writeError(w http.ResponseWriter, status int, code, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": typ, "code": code},
	})
}

func TestCompleteSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system prompt", req.Messages[0].Content)
		assert.Equal(t, "user prompt", req.Messages[1].Content)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "  answer \n"},
			}},
		})
	})

	got, err := client.Complete(context.Background(), "system prompt", "user prompt", 0.1)
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
}

func TestCompleteQuotaExceeded(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "insufficient_quota", "insufficient_quota",
			"You exceeded your current quota, please check your plan and billing details.")
	})

	_, err := client.Complete(context.Background(), "s", "u", 0)
	require.Error(t, err)
	assert.True(t, domain.IsQuotaExceeded(err))
}

func TestCompleteRateLimitIsNotQuota(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "requests", "Rate limit reached for requests")
	})

	_, err := client.Complete(context.Background(), "s", "u", 0)
	require.Error(t, err)
	assert.False(t, domain.IsQuotaExceeded(err))
}

func TestCompleteServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "", "server_error", "boom")
	})

	_, err := client.Complete(context.Background(), "s", "u", 0)
	require.Error(t, err)
	assert.False(t, domain.IsQuotaExceeded(err))
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(config.LLMConfig{})
	require.Error(t, err)
}
