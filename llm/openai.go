package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// It uses net/http directly, no SDK needed for one endpoint.
type OpenAIClient struct {
	httpClient *http.Client
	cfg        config.LLMConfig
}

// NewOpenAIClient builds a client from config. Pass nil to use a fresh
// http.Client with the configured timeout.
func NewOpenAIClient(cfg config.LLMConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{httpClient: httpClient, cfg: cfg}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends one chat completion with JSON response format forced on.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature:    0,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, models.NewExtractError(models.ErrKindCancelled,
				"model call cancelled", err)
		}
		return nil, models.NewExtractError(models.ErrKindModelUnavailable,
			"model request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewExtractError(models.ErrKindModelUnavailable,
			"failed to read model response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyProviderError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewExtractError(models.ErrKindModelUnavailable,
			"failed to parse model response envelope", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, models.NewExtractError(models.ErrKindModelUnavailable,
			"model returned no choices", nil)
	}

	return &CompletionResult{
		Content: chatResp.Choices[0].Message.Content,
		Usage: models.LLMUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// classifyProviderError maps provider HTTP failures onto the error taxonomy.
// Quota, transport, and server errors are all MODEL_UNAVAILABLE; the retry
// budget bounds how long a dead provider is hammered.
func classifyProviderError(statusCode int, body []byte) *models.ExtractError {
	var errResp chatErrorResponse
	msg := "model API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return models.NewExtractError(models.ErrKindModelUnavailable,
		fmt.Sprintf("model API returned %d: %s", statusCode, msg), nil)
}
