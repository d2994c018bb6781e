// Package llm abstracts the external model providers behind a single-shot
// completion interface. Both the ingestion classifier and the reply
// generator speak through it.
package llm

import (
	"context"
	"fmt"
)

// Request is a single-shot completion request, optionally carrying one image
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string

	// ImageData, when set, is attached to the user turn. ImageMIME defaults
	// to image/jpeg.
	ImageData []byte
	ImageMIME string

	MaxTokens   int
	Temperature float64
}

// Provider is a model backend able to answer a Request
type Provider interface {
	// Name returns the provider identifier (openai, anthropic)
	Name() string

	// Complete returns the model's text output for the request
	Complete(ctx context.Context, req Request) (string, error)
}

// New creates a provider by name
func New(provider string, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	switch provider {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (must be: openai, anthropic)", provider)
	}
}

func (r Request) imageMIME() string {
	if r.ImageMIME != "" {
		return r.ImageMIME
	}
	return "image/jpeg"
}
