package handlers

import (
	"context"
	"strings"

	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/agent/rag"
	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/contextbuilder"
	"github.com/bbangmxn/mailintel/core/service/query/textutil"
)

const semanticRetrievalK = 50

// SemanticHandler answers open-ended questions over email content by
// vector (or hybrid) search, optional reranking, and LLM generation.
type SemanticHandler struct {
	store         out.MessageStore
	embedder      *embed.Engine
	llm           out.LLM
	reranker      *rag.Reranker
	hybridCapable bool
}

// NewSemanticHandler constructs a SemanticHandler. hybridCapable selects
// between the store's HybridSearch and a plain SimilaritySearch-then-rerank
// path.
func NewSemanticHandler(store out.MessageStore, embedder *embed.Engine, llm out.LLM, reranker *rag.Reranker, hybridCapable bool) *SemanticHandler {
	return &SemanticHandler{store: store, embedder: embedder, llm: llm, reranker: reranker, hybridCapable: hybridCapable}
}

// Handle implements the six steps: counting-question
// override, embed, retrieve (hybrid or vector+rerank), build context,
// generate, and score confidence.
func (h *SemanticHandler) Handle(ctx context.Context, question string, limit int, threshold float64, history []domain.ChatMessage) Result {
	if isCountingQuestion(question) {
		limit = maxInt(limit, 100)
		threshold = minFloat(threshold, 0.25)
	}

	vector, err := h.embedder.EmbedText(ctx, question)
	if err != nil {
		return errResult(question, domain.QuerySemantic, err)
	}

	var scored []out.ScoredMessage
	if h.hybridCapable {
		scored, err = h.store.HybridSearch(ctx, vector, question, limit, semanticRetrievalK, 0.6, 0.4)
		if err != nil {
			return errResult(question, domain.QuerySemantic, err)
		}
	} else {
		scored, err = h.similarityThenRerank(ctx, vector, question, limit, threshold)
		if err != nil {
			return errResult(question, domain.QuerySemantic, err)
		}
	}

	if len(scored) == 0 {
		return Result{
			Answer:     "I couldn't find any emails matching that.",
			Question:   question,
			Confidence: domain.ConfidenceNone,
			QueryType:  domain.QuerySemantic,
		}
	}

	answer := h.generate(ctx, question, scored, history)
	return Result{
		Answer:     answer,
		Sources:    sourcesFromScored(scored),
		Question:   question,
		Confidence: confidenceFromScore(topScore(scored)),
		QueryType:  domain.QuerySemantic,
	}
}

func (h *SemanticHandler) similarityThenRerank(ctx context.Context, vector []float32, question string, limit int, threshold float64) ([]out.ScoredMessage, error) {
	candidates, err := h.store.SimilaritySearch(ctx, vector, semanticRetrievalK, threshold)
	if err != nil {
		return nil, err
	}
	msgs := make([]*domain.Message, len(candidates))
	for i, c := range candidates {
		msgs[i] = c.Message
	}

	ranked := h.reranker.Rerank(ctx, question, msgs, limit)
	scored := make([]out.ScoredMessage, len(ranked))
	for i, r := range ranked {
		scored[i] = out.ScoredMessage{Message: r.Message, Score: r.Score}
	}
	return scored, nil
}

func (h *SemanticHandler) generate(ctx context.Context, question string, scored []out.ScoredMessage, history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Answer the user's question using only the emails below. Be concise.\n\n")
	if recent := textutil.RecentHistory(history, 3); recent != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(recent)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(contextbuilder.Build(contextbuilder.WrapScored(scored)))

	reply, err := h.llm.Invoke(ctx, b.String())
	if err != nil || strings.TrimSpace(reply) == "" {
		return "I found some relevant emails but couldn't generate a summary right now."
	}
	return reply
}

func isCountingQuestion(question string) bool {
	lower := strings.ToLower(question)
	return strings.Contains(lower, "how many") || strings.Contains(lower, "count") || strings.Contains(lower, "number of")
}

func topScore(scored []out.ScoredMessage) float64 {
	if len(scored) == 0 {
		return 0
	}
	top := scored[0].Score
	for _, s := range scored[1:] {
		if s.Score > top {
			top = s.Score
		}
	}
	return top
}

func confidenceFromScore(score float64) domain.Confidence {
	switch {
	case score > 0.8:
		return domain.ConfidenceHigh
	case score > 0.6:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
