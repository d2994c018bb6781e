package ingest

import (
	"context"
	"fmt"

	"github.com/wenli/memekeeper/pkg/llm"
)

// Classifier decides whether an image is worth keeping. It returns the raw
// text verdict; parsing it is the pipeline's job.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte, contextText string) (string, error)
}

const classifierSystemPrompt = `You curate a meme library for a chat bot. ` +
	`Decide whether the image you are shown is worth keeping as a reaction meme. ` +
	`If it is not, reply with exactly: NO. ` +
	`If it is, reply with YES on the first line, and on the second line a single ` +
	`"<label>:<usage>" tag, where label is a short name for the meme and usage ` +
	`explains when to send it.`

// LLMClassifier implements Classifier on top of a model provider
type LLMClassifier struct {
	provider llm.Provider
	model    string
}

// NewLLMClassifier creates a classifier backed by the given provider
func NewLLMClassifier(provider llm.Provider, model string) *LLMClassifier {
	return &LLMClassifier{
		provider: provider,
		model:    model,
	}
}

// Classify sends the image and its surrounding message text to the model
func (c *LLMClassifier) Classify(ctx context.Context, imageBytes []byte, contextText string) (string, error) {
	prompt := "Look at this image."
	if contextText != "" {
		prompt = fmt.Sprintf("Look at this image. The message it came with was: %q.", contextText)
	}

	return c.provider.Complete(ctx, llm.Request{
		Model:        c.model,
		SystemPrompt: classifierSystemPrompt,
		Prompt:       prompt,
		ImageData:    imageBytes,
		MaxTokens:    256,
	})
}
