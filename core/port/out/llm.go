package out

import "context"

// LLM is the single capability the core sees over whichever concrete
// provider is configured. Provider-specific request
// shaping lives entirely behind implementations of this interface.
type LLM interface {
	// Invoke performs open-ended generation.
	//
	// Neither method sets a temperature or output bound of its own: the
	// openai client sends the configured LLM temperature and max tokens on
	// both, the anthropic client sends the configured max tokens on both,
	// and the ollama and command clients leave both to the backend.
	Invoke(ctx context.Context, prompt string) (string, error)
	// Classify performs a structured extraction call (JSON-format hint
	// where the backend supports it).
	Classify(ctx context.Context, system, user string) (string, error)
}

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
