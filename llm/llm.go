// Package llm abstracts the completion model behind a small Backend
// interface. The extraction engine depends only on Backend, so any
// OpenAI-compatible provider (or a test fake) can serve it.
package llm

import (
	"context"

	"github.com/use-agent/storesleuth/models"
)

// Backend produces one completion per call.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// CompletionRequest is one structured-output completion.
type CompletionRequest struct {
	// System is the instruction prompt.
	System string

	// User is the page content to extract from.
	User string

	// MaxTokens bounds the completion; 0 uses the backend default.
	MaxTokens int
}

// CompletionResult carries the raw model output. Parsing and schema
// validation are the caller's concern.
type CompletionResult struct {
	Content string
	Usage   models.LLMUsage
}
