package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
		Timeout:   5 * time.Second,
	}
}

func TestCompleteSuccess(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices":[{"message":{"content":"{\"name\":\"Widget\"}"}}],
			"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testLLMConfig(srv.URL+"/v1"), nil)
	res, err := client.Complete(context.Background(), CompletionRequest{
		System: "extract the product",
		User:   "page content",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Widget"}`, res.Content)
	assert.Equal(t, 150, res.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Zero(t, captured.Temperature)
	assert.Equal(t, 1024, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestCompleteMaxTokensOverride(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testLLMConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "x", MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, captured.MaxTokens)
}

func TestCompleteProviderError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"upstream exploded"}}`},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`},
		{"opaque body", http.StatusBadGateway, `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewOpenAIClient(testLLMConfig(srv.URL), nil)
			_, err := client.Complete(context.Background(), CompletionRequest{User: "x"})
			require.Error(t, err)
			assert.Equal(t, models.ErrKindModelUnavailable, models.ErrKind(err))
		})
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testLLMConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "x"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindModelUnavailable, models.ErrKind(err))
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewOpenAIClient(testLLMConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "x"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindModelUnavailable, models.ErrKind(err))
}

func TestCompleteCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so net/http starts client-disconnect detection;
		// otherwise r.Context() is never cancelled and srv.Close hangs.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewOpenAIClient(testLLMConfig(srv.URL), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, CompletionRequest{User: "x"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindCancelled, models.ErrKind(err))
}
