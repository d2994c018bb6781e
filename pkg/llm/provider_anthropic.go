package llm

import (
	"context"
	"encoding/base64"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete makes an API call to Anthropic Claude
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	blocks := []anthropic.ContentBlockParamUnion{}
	if len(req.ImageData) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.imageMIME(),
			base64.StdEncoding.EncodeToString(req.ImageData)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		MaxTokens: int64(maxTokens),
	}

	if req.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if req.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(req.Temperature)
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return "", err
	}

	content := ""
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	return content, nil
}
