package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bbangmxn/mailintel/config"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.1"

// ollamaClient implements out.LLM and out.Embedder against a local Ollama
// server's REST API. No Go SDK exists in the retrieval pack for Ollama;
// this is a justified plain net/http client (see DESIGN.md).
type ollamaClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

func newOllamaClient(cfg *config.Config) (*ollamaClient, error) {
	if cfg.LLMEndpointURL == "" {
		return nil, fmt.Errorf("LLM_ENDPOINT_URL is required for the ollama provider")
	}
	model := cfg.LLMModel
	if model == "" {
		model = DefaultOllamaModel
	}
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ollamaClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.LLMEndpointURL,
		model:      model,
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (c *ollamaClient) generate(ctx context.Context, req ollamaGenerateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return out.Response, nil
}

func (c *ollamaClient) Invoke(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: false})
}

func (c *ollamaClient) Classify(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, ollamaGenerateRequest{
		Model:  c.model,
		System: system,
		Prompt: user,
		Stream: false,
		Format: "json",
	})
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *ollamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed returned status %d", resp.StatusCode)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama embed response: %w", err)
	}
	return out.Embeddings, nil
}

func (c *ollamaClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}
