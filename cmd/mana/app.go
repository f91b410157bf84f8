package main

import (
	"context"
	"fmt"
	"time"

	mctx "github.com/manaxbt/manaonsol/internal/context"
	"github.com/manaxbt/manaonsol/internal/config"
	"github.com/manaxbt/manaonsol/internal/embedding"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/manaxbt/manaonsol/internal/metrics"
	"github.com/manaxbt/manaonsol/internal/persona"
	"github.com/manaxbt/manaonsol/internal/provider"
	pgstore "github.com/manaxbt/manaonsol/internal/store"
	"github.com/manaxbt/manaonsol/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds every wired component. Optional backends are nil when unconfigured
// or unreachable.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	vectors   vectorstore.Store
	kb        *knowledge.Base
	ledger    *ledger.Ledger
	assembler *mctx.Assembler
	prompts   *persona.PromptStore
	generator *persona.Generator

	rdb *redis.Client
	pg  *pgstore.Store
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	embedder, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}

	switch cfg.VectorStore.Backend {
	case "memory":
		a.vectors = vectorstore.NewMemory(cfg.Embedding.Dimension)
		logger.Warn("using in-memory vector store, knowledge is not persisted")
	default:
		q, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
			Host:             cfg.VectorStore.Qdrant.Host,
			Port:             cfg.VectorStore.Qdrant.Port,
			CollectionPrefix: cfg.VectorStore.Qdrant.CollectionPrefix,
			Dimension:        cfg.Embedding.Dimension,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		a.vectors = q
	}

	a.kb = knowledge.New(embedder, a.vectors, knowledge.Options{
		DefaultNamespace:   cfg.Knowledge.DefaultNamespace,
		SearchNamespaces:   cfg.Knowledge.SearchNamespaces,
		BackroomsNamespace: cfg.Knowledge.BackroomsNamespace,
		MaxChunkTokens:     cfg.Knowledge.MaxChunkTokens,
		Dimension:          cfg.Embedding.Dimension,
		ScanQPS:            cfg.Knowledge.ScanQPS,
	}, a.metrics, logger)

	opts := ledger.Options{
		Path:            cfg.Ledger.Path,
		MaxTweets:       cfg.Ledger.MaxTweets,
		MaxInteractions: cfg.Ledger.MaxInteractions,
		Namespace:       cfg.Ledger.Namespace,
	}
	if cfg.Database.Postgres.DSN != "" {
		ps, err := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("postgres unavailable, interactions are not archived", zap.Error(err))
		} else if err := ps.Migrate(ctx, "migrations"); err != nil {
			ps.Close()
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		} else {
			a.pg = ps
			opts.Archive = ps
		}
	}
	a.ledger, err = ledger.New(a.kb, opts, a.metrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.assembler = mctx.NewAssembler(mctx.DefaultConfig(), a.kb, a.ledger, logger)

	a.prompts, err = persona.NewPromptStore(cfg.Prompts.Path, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	llm, err := provider.NewFromConfig(providerConfigs(cfg.Providers), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if len(cfg.Providers) == 0 {
		logger.Warn("no llm providers configured, generation is disabled")
	}
	a.generator = persona.NewGenerator(llm, a.prompts, a.assembler, a.ledger, a.metrics, logger)

	logger.Info("mana initialized",
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.Int("tweets", a.ledger.Size()),
		zap.Bool("archive", a.pg != nil),
		zap.Bool("embedding_cache", a.rdb != nil))
	return a, nil
}

// embedder builds the embedding provider, wrapped in the Redis cache when one
// is configured and reachable.
func (a *app) embedder(ctx context.Context) (embedding.Provider, error) {
	ec := a.cfg.Embedding
	inner, err := embedding.New(embedding.Config{
		Provider:  ec.Provider,
		Endpoint:  ec.Endpoint,
		Model:     ec.Model,
		APIKey:    ec.APIKey,
		Dimension: ec.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if a.cfg.Database.Redis.URL == "" {
		return inner, nil
	}

	opt, err := redis.ParseURL(a.cfg.Database.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unavailable, embeddings are not cached", zap.Error(err))
		rdb.Close()
		return inner, nil
	}
	a.rdb = rdb
	ttl := time.Duration(ec.CacheTTL) * time.Second
	return embedding.NewCached(inner, rdb, ec.Model, ttl, a.logger), nil
}

func providerConfigs(in []config.ProviderConfig) []provider.ProviderConfig {
	out := make([]provider.ProviderConfig, 0, len(in))
	for _, pc := range in {
		out = append(out, provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		})
	}
	return out
}

// Close releases every backend that was opened.
func (a *app) Close() {
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			a.logger.Warn("close vector store", zap.Error(err))
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
