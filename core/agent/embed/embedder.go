// Package embed implements the embedding engine: token budgeting, sentence
// chunking with overlap, and batch encoding.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbangmxn/mailintel/core/port/out"
)

const (
	// TMax is the maximum estimated tokens per single embedding input.
	TMax = 400
	// TOverlap is the chunk overlap budget in estimated tokens.
	TOverlap = 100
	// charsPerToken is the conservative token-estimation ratio; the model
	// performs exact tokenization internally, this is only used to decide
	// chunk boundaries.
	charsPerToken = 4
)

// EstimateTokens approximates token count from character count.
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Engine wraps an out.Embedder with a chunking/truncation policy.
// Grounded on core/agent/rag/worker_rag_embedder.go's thin wrapper shape.
type Engine struct {
	client out.Embedder
}

// New creates a new embedding Engine.
func New(client out.Embedder) *Engine {
	return &Engine{client: client}
}

// EmbedText truncates t to TMax tokens and returns its embedding.
func (e *Engine) EmbedText(ctx context.Context, t string) ([]float32, error) {
	return e.client.EmbedText(ctx, truncateToTokens(t, TMax))
}

// EmbedBatch embeds multiple texts in one call, preferred for throughput.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncateToTokens(t, TMax)
	}
	return e.client.EmbedBatch(ctx, truncated)
}

// EmailEmbedding is the result of embedding one email: either a single
// vector, or a set of chunk texts with their own vectors — never both.
type EmailEmbedding struct {
	Single []float32
	Chunks []ChunkEmbedding
}

// ChunkEmbedding pairs one chunk's text with its vector.
type ChunkEmbedding struct {
	Text      string
	Embedding []float32
}

// IsChunked reports whether this embedding used the chunked path.
func (e EmailEmbedding) IsChunked() bool {
	return len(e.Chunks) > 0
}

// EmbedEmail composes the canonical text for an email and embeds it,
// returning a single vector when it fits the token budget, or a chunked
// embedding otherwise.
func (e *Engine) EmbedEmail(ctx context.Context, subject, body, sender string) (EmailEmbedding, error) {
	text := CanonicalText(subject, body, sender)

	if EstimateTokens(text) <= TMax {
		v, err := e.client.EmbedText(ctx, text)
		if err != nil {
			return EmailEmbedding{}, fmt.Errorf("embed single: %w", err)
		}
		return EmailEmbedding{Single: v}, nil
	}

	chunkTexts := ChunkText(text)
	vectors, err := e.client.EmbedBatch(ctx, chunkTexts)
	if err != nil {
		return EmailEmbedding{}, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]ChunkEmbedding, len(chunkTexts))
	for i, txt := range chunkTexts {
		chunks[i] = ChunkEmbedding{Text: txt, Embedding: vectors[i]}
	}
	return EmailEmbedding{Chunks: chunks}, nil
}

// CanonicalText composes the canonical embedding text for an email.
func CanonicalText(subject, body, sender string) string {
	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(subject)
	if sender != "" {
		b.WriteString("\nFrom: ")
		b.WriteString(sender)
	}
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}

func truncateToTokens(s string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}
