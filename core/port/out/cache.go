package out

import (
	"context"
	"time"

	"github.com/bbangmxn/mailintel/core/domain"
)

// ClassificationCacheEntry is one cached Classifier result.
type ClassificationCacheEntry struct {
	Labels   []string
	Priority domain.Priority
	Summary  string
}

// ClassificationCache short-circuits a repeat LLM call for byte-identical
// content re-submitted through Classify+Embed.
type ClassificationCache interface {
	Get(ctx context.Context, key string) (*ClassificationCacheEntry, bool, error)
	Set(ctx context.Context, key string, entry ClassificationCacheEntry, ttl time.Duration) error
}

// SenderProfileStore persists the rolling per-sender classification
// history the sender short-circuit consults.
type SenderProfileStore interface {
	Get(ctx context.Context, sender string) (*domain.SenderProfile, error)
	RecordClassification(ctx context.Context, sender string, labels []string, priority domain.Priority) error
}
