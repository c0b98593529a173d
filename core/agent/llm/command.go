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

// DefaultCommandModel is used when no model is configured.
const DefaultCommandModel = "command-r"

// commandClient implements out.LLM and out.Embedder against a Cohere
// Command-compatible chat endpoint. No Cohere SDK exists anywhere in the
// retrieval pack; this is a justified plain net/http client (DESIGN.md).
type commandClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
}

func newCommandClient(cfg *config.Config) *commandClient {
	model := cfg.LLMModel
	if model == "" {
		model = DefaultCommandModel
	}
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	endpoint := cfg.LLMEndpointURL
	if endpoint == "" {
		endpoint = "https://api.cohere.ai"
	}
	return &commandClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.OpenAIAPIKey,
	}
}

type commandChatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type commandChatResponse struct {
	Text string `json:"text"`
}

func (c *commandClient) chat(ctx context.Context, req commandChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal command request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("command request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("command provider returned status %d", resp.StatusCode)
	}

	var out commandChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode command response: %w", err)
	}
	return out.Text, nil
}

func (c *commandClient) Invoke(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, commandChatRequest{Model: c.model, Message: prompt})
}

func (c *commandClient) Classify(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, commandChatRequest{Model: c.model, Preamble: system, Message: user})
}

type commandEmbedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type commandEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *commandClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(commandEmbedRequest{Model: "embed-english-v3.0", Texts: texts, InputType: "search_document"})
	if err != nil {
		return nil, fmt.Errorf("marshal command embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("command embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("command embed returned status %d", resp.StatusCode)
	}

	var out commandEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode command embed response: %w", err)
	}
	return out.Embeddings, nil
}

func (c *commandClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}
