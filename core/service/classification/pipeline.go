package classification

import (
	"context"
	"time"

	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/logger"
)

// cacheTTL is how long a classification cache entry lives before a
// re-submission falls through to the LLM again.
const cacheTTL = time.Hour

// Input is everything the pipeline needs to classify one message.
type Input struct {
	Subject string
	Body    string
	Sender  string
	Headers []out.MailHeader
}

// Pipeline wraps the LLM-backed Classifier with cost-saving
// short-circuits: RFC headers, a response cache,
// and a sender-profile stability check. None of these change the
// {labels, priority, summary} contract the Classifier defines; they
// only decide whether the LLM needs to be asked at all.
type Pipeline struct {
	classifier    *Classifier
	cache         out.ClassificationCache
	senderProfile out.SenderProfileStore
}

// NewPipeline constructs a Pipeline. cache and senderProfile may be nil,
// in which case their short-circuit stages are skipped.
func NewPipeline(classifier *Classifier, cache out.ClassificationCache, senderProfile out.SenderProfileStore) *Pipeline {
	return &Pipeline{classifier: classifier, cache: cache, senderProfile: senderProfile}
}

// Classify runs the short-circuit stages in order, falling through to the
// LLM-backed Classifier only when none of them produce a confident answer.
func (p *Pipeline) Classify(ctx context.Context, input Input) (Result, error) {
	if result := rfcShortCircuit(input.Headers); result != nil {
		logger.Debug("classification short-circuited by RFC headers: sender=%s", input.Sender)
		return *result, nil
	}

	key := cacheKey(input.Subject, input.Body)
	if p.cache != nil {
		if entry, found, err := p.cache.Get(ctx, key); err == nil && found {
			logger.Debug("classification cache hit: sender=%s", input.Sender)
			return Result{Labels: entry.Labels, Priority: entry.Priority, Summary: entry.Summary}, nil
		}
	}

	if p.senderProfile != nil && input.Sender != "" {
		if profile, err := p.senderProfile.Get(ctx, input.Sender); err == nil && profile.IsStable() {
			logger.Debug("classification short-circuited by stable sender profile: sender=%s", input.Sender)
			return Result{
				Labels:   profile.LastLabels,
				Priority: profile.LastPriority,
				Summary:  "Classified from a stable sender profile.",
			}, nil
		}
	}

	result, err := p.classifier.Classify(ctx, input.Subject, input.Body)
	if err != nil {
		return Result{}, err
	}

	if p.cache != nil {
		_ = p.cache.Set(ctx, key, out.ClassificationCacheEntry{
			Labels:   result.Labels,
			Priority: result.Priority,
			Summary:  result.Summary,
		}, cacheTTL)
	}
	if p.senderProfile != nil && input.Sender != "" {
		_ = p.senderProfile.RecordClassification(ctx, input.Sender, result.Labels, result.Priority)
	}

	return result, nil
}
