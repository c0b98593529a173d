package embed

import (
	"strings"
	"testing"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	text := "Hello there. How are you?"
	chunks := ChunkText(text)
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
}

func TestChunkText_NoSentenceBoundaryFallsBackToSingleChunk(t *testing.T) {
	text := strings.Repeat("a", 50)
	chunks := ChunkText(text)
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestChunkText_LongTextProducesMultipleChunksUnderBudget(t *testing.T) {
	sentence := strings.Repeat("word ", 20) + "end. "
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(sentence)
	}
	chunks := ChunkText(b.String())

	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if EstimateTokens(c) > TMax {
			t.Errorf("chunk %d exceeds TMax: %d tokens", i, EstimateTokens(c))
		}
	}
}

func TestChunkText_ConsecutiveChunksShareOverlap(t *testing.T) {
	sentence := strings.Repeat("word ", 20) + "end. "
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(sentence)
	}
	chunks := ChunkText(b.String())
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks to assert overlap, got %d", len(chunks))
	}

	firstChunkTail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(firstChunkTail)) {
		t.Errorf("chunk 1 does not repeat the tail of chunk 0; tail=%q chunk1 prefix=%q", firstChunkTail, chunks[1][:40])
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("a", 400), 100},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestCanonicalText(t *testing.T) {
	got := CanonicalText("Hi", "body text", "a@b.com")
	want := "Subject: Hi\nFrom: a@b.com\n\nbody text"
	if got != want {
		t.Errorf("CanonicalText = %q, want %q", got, want)
	}
}

func TestCanonicalText_NoSender(t *testing.T) {
	got := CanonicalText("Hi", "body text", "")
	want := "Subject: Hi\n\nbody text"
	if got != want {
		t.Errorf("CanonicalText = %q, want %q", got, want)
	}
}
