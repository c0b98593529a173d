package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bbangmxn/mailintel/config"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// anthropicClient implements out.LLM over the Anthropic Messages API.
// Grounded on vvoland-cagent's pkg/model/provider/anthropic client
// construction and message conversion.
type anthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func newAnthropicClient(cfg *config.Config) *anthropicClient {
	model := cfg.LLMModel
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := int64(cfg.LLMMaxTokens)
	if maxTokens == 0 {
		maxTokens = 2048
	}
	return &anthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (c *anthropicClient) Invoke(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	return concatText(msg), nil
}

func (c *anthropicClient) Classify(ctx context.Context, system, user string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}
	return concatText(msg), nil
}

func concatText(msg *anthropic.Message) string {
	out := ""
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}
