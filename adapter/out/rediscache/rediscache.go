// Package rediscache implements the classification cache and sender
// profile store against Redis.
package rediscache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

// RedisConfig holds pool tuning, mirrored from the
// bootstrap defaults.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns the pool defaults used when none are given.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewClient opens and pings a Redis client against url.
func NewClient(url string, cfg *RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = cfg.MaxRetries
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

const classificationKeyPrefix = "classify:"

// ClassificationCache is a Redis-backed out.ClassificationCache.
type ClassificationCache struct {
	client *redis.Client
}

// NewClassificationCache creates a ClassificationCache.
func NewClassificationCache(client *redis.Client) *ClassificationCache {
	return &ClassificationCache{client: client}
}

var _ out.ClassificationCache = (*ClassificationCache)(nil)

func (c *ClassificationCache) Get(ctx context.Context, key string) (*out.ClassificationCacheEntry, bool, error) {
	data, err := c.client.Get(ctx, classificationKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry out.ClassificationCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func (c *ClassificationCache) Set(ctx context.Context, key string, entry out.ClassificationCacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, classificationKeyPrefix+key, data, ttl).Err()
}

const senderProfileKeyPrefix = "sender:"

// senderProfileRecord is the wire shape stored in Redis; StableStreak and
// TotalClassified are recomputed in RecordClassification from the stored
// record and written back with it.
type senderProfileRecord struct {
	LastLabels      []string        `json:"last_labels"`
	LastPriority    domain.Priority `json:"last_priority"`
	StableStreak    int             `json:"stable_streak"`
	TotalClassified int             `json:"total_classified"`
}

// SenderProfileStore is a Redis-backed out.SenderProfileStore. Profiles
// never expire: they are a rolling history, not a cache.
type SenderProfileStore struct {
	client *redis.Client
}

// NewSenderProfileStore creates a SenderProfileStore.
func NewSenderProfileStore(client *redis.Client) *SenderProfileStore {
	return &SenderProfileStore{client: client}
}

var _ out.SenderProfileStore = (*SenderProfileStore)(nil)

func (s *SenderProfileStore) Get(ctx context.Context, sender string) (*domain.SenderProfile, error) {
	data, err := s.client.Get(ctx, senderProfileKeyPrefix+sender).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec senderProfileRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &domain.SenderProfile{
		Sender:          sender,
		LastLabels:      rec.LastLabels,
		LastPriority:    rec.LastPriority,
		StableStreak:    rec.StableStreak,
		TotalClassified: rec.TotalClassified,
	}, nil
}

func (s *SenderProfileStore) RecordClassification(ctx context.Context, sender string, labels []string, priority domain.Priority) error {
	existing, err := s.Get(ctx, sender)
	if err != nil {
		return err
	}

	rec := senderProfileRecord{LastLabels: labels, LastPriority: priority}
	if existing != nil && sameLabelSet(existing.LastLabels, labels) && existing.LastPriority == priority {
		rec.StableStreak = existing.StableStreak + 1
	} else {
		rec.StableStreak = 1
	}
	rec.TotalClassified = 1
	if existing != nil {
		rec.TotalClassified = existing.TotalClassified + 1
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, senderProfileKeyPrefix+sender, data, 0).Err()
}

func sameLabelSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, l := range a {
		seen[l]++
	}
	for _, l := range b {
		seen[l]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
