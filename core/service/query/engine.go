package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/agent/rag"
	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/query/handlers"
)

const defaultTopK = 10

// Deps bundles the Engine's collaborators, mirroring the
// dependency-bundle constructor style.
type Deps struct {
	Store         out.MessageStore
	LLM           out.LLM
	Embedder      *embed.Engine
	Reranker      *rag.Reranker
	HybridCapable bool
}

// Request is one question asked of the RAG Engine.
type Request struct {
	Question            string
	ChatSessionID       string
	TopK                int
	SimilarityThreshold float64
	History             []domain.ChatMessage
}

// Answer is the RAG Engine's response to a Request.
type Answer struct {
	Answer     string
	Sources    []domain.Source
	Question   string
	Confidence domain.Confidence
	QueryType  domain.QueryKind
	TotalCount int
}

// Engine is the RAG Engine: it classifies a question, dispatches it to the
// matching handler, and records the assistant's turn.
type Engine struct {
	store      out.MessageStore
	classifier *Classifier

	conversation *handlers.ConversationHandler
	aggregation  *handlers.AggregationHandler
	sender       *handlers.SenderHandler
	attachment   *handlers.AttachmentHandler
	classifyH    *handlers.ClassificationHandler
	temporal     *handlers.TemporalHandler
	semantic     *handlers.SemanticHandler
}

// NewEngine wires the seven handlers (one of which serves both temporal
// query kinds) and the Classifier over a shared Deps.
func NewEngine(deps Deps) *Engine {
	return &Engine{
		store:        deps.Store,
		classifier:   NewClassifier(deps.LLM),
		conversation: handlers.NewConversationHandler(deps.LLM),
		aggregation:  handlers.NewAggregationHandler(deps.Store, deps.LLM),
		sender:       handlers.NewSenderHandler(deps.Store, deps.LLM),
		attachment:   handlers.NewAttachmentHandler(deps.Store, deps.LLM),
		classifyH:    handlers.NewClassificationHandler(deps.Store, deps.LLM),
		temporal:     handlers.NewTemporalHandler(deps.Store, deps.LLM),
		semantic:     handlers.NewSemanticHandler(deps.Store, deps.Embedder, deps.LLM, deps.Reranker, deps.HybridCapable),
	}
}

// Ask classifies req.Question, dispatches it to the matching handler,
// appends the resulting assistant turn to the chat session (when one is
// given), and kicks off background title generation on a session's first
// message.
func (e *Engine) Ask(ctx context.Context, req Request) (Answer, error) {
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.SimilarityThreshold <= 0 {
		req.SimilarityThreshold = 0.5
	}

	if req.ChatSessionID != "" && len(req.History) == 0 {
		go e.maybeGenerateTitle(req.ChatSessionID, req.Question)
	}

	kind := e.classifier.Classify(ctx, req.Question, req.History)
	result := e.dispatch(ctx, kind, req)

	answer := Answer{
		Answer:     result.Answer,
		Sources:    result.Sources,
		Question:   result.Question,
		Confidence: result.Confidence,
		QueryType:  result.QueryType,
		TotalCount: result.TotalCount,
	}

	if req.ChatSessionID != "" {
		e.appendAssistantMessage(ctx, req.ChatSessionID, answer)
	}

	return answer, nil
}

func (e *Engine) dispatch(ctx context.Context, kind domain.QueryKind, req Request) handlers.Result {
	switch kind {
	case domain.QueryConversation:
		return e.conversation.Handle(ctx, req.Question)
	case domain.QueryAggregation:
		return e.aggregation.Handle(ctx, req.Question, req.History)
	case domain.QuerySearchBySender:
		return e.sender.Handle(ctx, req.Question, req.History)
	case domain.QuerySearchByAttach:
		return e.attachment.Handle(ctx, req.Question, req.TopK)
	case domain.QueryClassification:
		return e.classifyH.Handle(ctx, req.Question, req.TopK, req.History)
	case domain.QueryFilteredTemporal, domain.QueryTemporal:
		return e.temporal.Handle(ctx, req.Question, kind, req.TopK)
	default:
		return e.semantic.Handle(ctx, req.Question, req.TopK, req.SimilarityThreshold, req.History)
	}
}

func (e *Engine) appendAssistantMessage(ctx context.Context, sessionID string, answer Answer) {
	msg := &domain.ChatMessage{
		ID:            uuid.NewString(),
		ChatSessionID: sessionID,
		Role:          domain.RoleAssistant,
		Content:       answer.Answer,
		Sources:       answer.Sources,
		Confidence:    answer.Confidence,
		QueryType:     answer.QueryType,
		CreatedAt:     time.Now(),
	}
	_ = e.store.SaveMessageToChatSession(ctx, sessionID, msg)
}

// maybeGenerateTitle runs detached from the request's context, grounded on
// a sessiontitle.Generator: a single bounded LLM call that
// produces a short title from the session's opening question.
func (e *Engine) maybeGenerateTitle(sessionID, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := e.store.GetChatSession(ctx, sessionID)
	if err != nil || session == nil || session.Title != "" {
		return
	}

	title := generateTitle(ctx, e.classifier.llm, question)
	if title == "" {
		return
	}
	_ = e.store.UpdateChatSessionTitle(ctx, sessionID, title)
}

const titleSystemPrompt = "Generate a short chat title (3-6 words, no punctuation at the end) summarizing what this conversation is about."

func generateTitle(ctx context.Context, llm out.LLM, question string) string {
	raw, err := llm.Classify(ctx, titleSystemPrompt, question)
	if err != nil {
		return ""
	}
	return sanitizeTitle(raw)
}

// sanitizeTitle takes the first non-empty line of raw and strips quoting
// and trailing punctuation, matching a sessiontitle.Generator's
// sanitization approach.
func sanitizeTitle(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'")
		if line == "" {
			continue
		}
		if len(line) > 80 {
			line = line[:80]
		}
		return line
	}
	return ""
}
