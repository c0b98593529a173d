// Package bootstrap wires the process's adapters and services together
// into one Dependencies bundle: every adapter is optional at the type
// level; MongoDB, Redis, the sqlx analytics pool, the mail provider and the
// LLM gateway are left nil with a logged warning when they cannot be
// constructed, while a Postgres pool or SQLite file that fails to open is
// returned as an error. The caller gets back a single cleanup func that
// tears down whatever did connect.
package bootstrap

import (
	"context"

	"github.com/bbangmxn/mailintel/adapter/out/memstore"
	"github.com/bbangmxn/mailintel/adapter/out/mongostore"
	"github.com/bbangmxn/mailintel/adapter/out/persistence"
	"github.com/bbangmxn/mailintel/adapter/out/provider"
	"github.com/bbangmxn/mailintel/adapter/out/rediscache"
	"github.com/bbangmxn/mailintel/adapter/out/sqlitestore"
	"github.com/bbangmxn/mailintel/config"
	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/agent/llm"
	"github.com/bbangmxn/mailintel/core/agent/rag"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/classification"
	"github.com/bbangmxn/mailintel/core/service/query"
	"github.com/bbangmxn/mailintel/core/service/sync"
	"github.com/bbangmxn/mailintel/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies bundles every constructed adapter and service the process
// needs. Connection handles are exposed alongside the higher-level
// services so cmd/mailintel can run health checks and close them cleanly.
type Dependencies struct {
	Config *config.Config

	DB    *pgxpool.Pool
	Mongo *mongo.Database
	Redis *redis.Client

	MessageStore out.MessageStore
	ChunkStore   out.ChunkStore
	Payloads     out.PayloadStore

	ClassificationCache out.ClassificationCache
	SenderProfiles      out.SenderProfileStore

	MailProvider out.MailProvider

	Gateway    *llm.Gateway
	Embedder   *embed.Engine
	Reranker   *rag.Reranker
	Classifier *classification.Classifier
	Pipeline   *classification.Pipeline

	SyncController *sync.Controller
	QueryEngine    *query.Engine
}

// New constructs a Dependencies bundle from cfg. It returns a cleanup
// func that closes whatever connections were opened, even on a partial
// failure, so callers can always `defer cleanup()` right after the call
// regardless of the returned error.
func New(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.StorageBackend == config.StoragePostgres {
		db, err := persistence.NewPostgresPool(cfg.DatabaseURL, persistence.DefaultPostgresConfig())
		if err != nil {
			return nil, cleanup, err
		}
		deps.DB = db
		cleanups = append(cleanups, db.Close)
	}

	if cfg.MongoURL != "" {
		mongoDB, err := mongostore.Connect(cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			logger.Warn("mongodb connection failed: %v", err)
		} else {
			deps.Mongo = mongoDB
			cleanups = append(cleanups, func() {
				_ = mongoDB.Client().Disconnect(context.Background())
			})

			payloads := mongostore.NewPayloadStore(mongoDB)
			if err := payloads.EnsureIndexes(ctx); err != nil {
				logger.Warn("failed to ensure mongodb payload indexes: %v", err)
			}
			deps.Payloads = payloads
		}
	}

	if cfg.RedisURL != "" {
		redisClient, err := rediscache.NewClient(cfg.RedisURL, rediscache.DefaultRedisConfig())
		if err != nil {
			logger.Warn("redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { _ = redisClient.Close() })

			deps.ClassificationCache = rediscache.NewClassificationCache(redisClient)
			deps.SenderProfiles = rediscache.NewSenderProfileStore(redisClient)
		}
	}

	// MessageStore/ChunkStore construction dispatches on StorageBackend:
	// every backend must satisfy the same two ports, so the rest of the
	// bundle (query engine, sync controller) is wired identically
	// regardless of which one is active.
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		var analytics *persistence.AnalyticsReader
		if sqlxDB, err := persistence.NewSQLXPool(cfg.DatabaseURL); err != nil {
			logger.Warn("sqlx analytics pool failed, aggregate queries will use the primary pool: %v", err)
		} else {
			cleanups = append(cleanups, func() { _ = sqlxDB.Close() })
			analytics = persistence.NewAnalyticsReader(sqlxDB)
		}

		deps.MessageStore = persistence.NewMessageStore(deps.DB, deps.Payloads, analytics)
		deps.ChunkStore = persistence.NewChunkStore(deps.DB)

	case config.StorageSQLite:
		path := cfg.StorageDBPath
		if path == "" {
			path = sqlitestore.DefaultPath()
		}
		sqliteDB, err := sqlitestore.Open(path)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = sqliteDB.Close() })

		store := sqlitestore.New(sqliteDB)
		deps.MessageStore = store
		deps.ChunkStore = store

	case config.StorageMemory:
		store := memstore.New()
		deps.MessageStore = store
		deps.ChunkStore = store
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" && cfg.GoogleRefreshToken != "" {
		gmail, err := provider.NewGmailProvider(cfg)
		if err != nil {
			logger.Warn("gmail provider construction failed: %v", err)
		} else {
			deps.MailProvider = gmail
		}
	}

	gateway, err := llm.New(cfg)
	if err != nil {
		logger.Warn("llm gateway construction failed, classification/query will error: %v", err)
	} else {
		deps.Gateway = gateway
		deps.Embedder = embed.New(gateway)
		deps.Reranker = rag.NewReranker()
		deps.Classifier = classification.New(gateway)
		deps.Pipeline = classification.NewPipeline(deps.Classifier, deps.ClassificationCache, deps.SenderProfiles)

		deps.QueryEngine = query.NewEngine(query.Deps{
			Store:         deps.MessageStore,
			LLM:           gateway,
			Embedder:      deps.Embedder,
			Reranker:      deps.Reranker,
			HybridCapable: deps.MessageStore != nil,
		})
	}

	if deps.Pipeline != nil {
		deps.SyncController = sync.New(
			deps.MailProvider,
			deps.MessageStore,
			deps.ChunkStore,
			deps.Pipeline,
			deps.Embedder,
			cfg.LLMModel,
			cfg.EmbeddingModel,
			cfg.SyncMaxPrintedErrors,
		)
	}

	return deps, cleanup, nil
}
