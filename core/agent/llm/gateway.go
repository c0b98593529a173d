// Package llm implements the LLM Gateway: a single
// capability over one of several providers, plus a rule-based offline
// fallback. Grounded on core/agent/llm/worker_llm_client.go's client shape.
package llm

import (
	"context"
	"fmt"

	"github.com/bbangmxn/mailintel/config"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// Gateway implements out.LLM and out.Embedder by dispatching to whichever
// concrete provider was configured.
type Gateway struct {
	provider config.LLMProvider
	llm      out.LLM
	embedder out.Embedder
}

// New constructs a Gateway from configuration. Provider selection is a
// finite choice: explicit via cfg.LLMProvider or, when that is empty,
// auto-detected (OpenAI key, then Anthropic key, then an LLM endpoint URL
// for ollama, else rules). When no provider
// is available and the selection is not rules, construction fails fast
// with a Configuration error.
func New(cfg *config.Config) (*Gateway, error) {
	provider := cfg.LLMProvider
	if provider == "" {
		provider = autoDetect(cfg)
	}

	switch provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, apperr.Configuration("openai provider selected but OPENAI_API_KEY is not set")
		}
		c := newOpenAIClient(cfg)
		return &Gateway{provider: provider, llm: c, embedder: c}, nil

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, apperr.Configuration("anthropic provider selected but ANTHROPIC_API_KEY is not set")
		}
		c := newAnthropicClient(cfg)
		// Anthropic has no embeddings endpoint; embeddings fall back to rules'
		// deterministic hash-based vectors so retrieval still functions.
		return &Gateway{provider: provider, llm: c, embedder: newRulesClient()}, nil

	case config.ProviderOllama:
		c, err := newOllamaClient(cfg)
		if err != nil {
			return nil, apperr.Configuration(fmt.Sprintf("ollama provider construction failed: %v", err))
		}
		return &Gateway{provider: provider, llm: c, embedder: c}, nil

	case config.ProviderCommand:
		c := newCommandClient(cfg)
		return &Gateway{provider: provider, llm: c, embedder: c}, nil

	case config.ProviderRules:
		c := newRulesClient()
		return &Gateway{provider: provider, llm: c, embedder: c}, nil

	default:
		return nil, apperr.Configuration(fmt.Sprintf("no LLM provider available (got %q)", provider))
	}
}

func autoDetect(cfg *config.Config) config.LLMProvider {
	switch {
	case cfg.OpenAIAPIKey != "":
		return config.ProviderOpenAI
	case cfg.AnthropicAPIKey != "":
		return config.ProviderAnthropic
	case cfg.LLMEndpointURL != "":
		return config.ProviderOllama
	default:
		return config.ProviderRules
	}
}

// Provider reports which provider this Gateway dispatches to.
func (g *Gateway) Provider() config.LLMProvider { return g.provider }

// Invoke performs open-ended generation.
func (g *Gateway) Invoke(ctx context.Context, prompt string) (string, error) {
	return g.llm.Invoke(ctx, prompt)
}

// Classify performs a structured extraction call.
func (g *Gateway) Classify(ctx context.Context, system, user string) (string, error) {
	return g.llm.Classify(ctx, system, user)
}

// EmbedText embeds a single text.
func (g *Gateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return g.embedder.EmbedText(ctx, text)
}

// EmbedBatch embeds multiple texts.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return g.embedder.EmbedBatch(ctx, texts)
}
