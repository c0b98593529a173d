package llm

import (
	"testing"

	"github.com/bbangmxn/mailintel/config"
)

func TestNew_ExplicitRulesProvider(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.ProviderRules}

	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if gw.Provider() != config.ProviderRules {
		t.Errorf("Provider() = %q, want %q", gw.Provider(), config.ProviderRules)
	}
}

func TestNew_OpenAIRequiresAPIKey(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.ProviderOpenAI}

	_, err := New(cfg)
	if err == nil {
		t.Fatal("New() expected Configuration error when OPENAI_API_KEY is unset, got nil")
	}
}

func TestNew_AnthropicRequiresAPIKey(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.ProviderAnthropic}

	_, err := New(cfg)
	if err == nil {
		t.Fatal("New() expected Configuration error when ANTHROPIC_API_KEY is unset, got nil")
	}
}

func TestNew_OllamaRequiresEndpoint(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.ProviderOllama, LLMEndpointURL: ""}

	_, err := New(cfg)
	if err == nil {
		t.Fatal("New() expected error when LLM_ENDPOINT_URL is unset for ollama, got nil")
	}
}

func TestAutoDetect(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want config.LLMProvider
	}{
		{
			name: "openai key present",
			cfg:  &config.Config{OpenAIAPIKey: "sk-test"},
			want: config.ProviderOpenAI,
		},
		{
			name: "anthropic key present, no openai",
			cfg:  &config.Config{AnthropicAPIKey: "sk-ant-test"},
			want: config.ProviderAnthropic,
		},
		{
			name: "endpoint present, no api keys",
			cfg:  &config.Config{LLMEndpointURL: "http://localhost:11434"},
			want: config.ProviderOllama,
		},
		{
			name: "nothing configured falls back to rules",
			cfg:  &config.Config{},
			want: config.ProviderRules,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := autoDetect(tt.cfg)
			if got != tt.want {
				t.Errorf("autoDetect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.LLMProvider("not-a-real-provider")}

	_, err := New(cfg)
	if err == nil {
		t.Fatal("New() expected Configuration error for unknown provider, got nil")
	}
}
