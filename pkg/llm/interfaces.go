// Package llm provides the OpenAI-compatible client used by the optional
// enrichment stage.
package llm

import "context"

// Client is the interface the enrichment stage depends on. Use it for
// dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a single chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure OpenAIClient implements Client at compile time.
var _ Client = (*OpenAIClient)(nil)
