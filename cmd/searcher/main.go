package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/relations"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/dsl"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "similarity", cfg.Search.Similarity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port, nil)
	}
	checker := health.NewChecker(2 * time.Second)

	var relationSource relations.Source
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, using configured relations", "error", err)
		} else {
			defer pg.Close()
			relationSource = relations.NewStore(pg.DB)
			checker.Register("postgres", health.Ping(pg, false))
		}
	}
	rels, err := relations.Load(ctx, relationSource, cfg.Search.Relations)
	if err != nil {
		slog.Error("invalid relation registry", "error", err)
		os.Exit(1)
	}

	similarity, err := ranker.New(cfg.Search.Similarity)
	if err != nil {
		slog.Error("invalid similarity", "error", err)
		os.Exit(1)
	}
	exec := executor.New(index.NewMemoryIndex(), executor.Options{
		MaxParallelism:  cfg.Search.MaxParallelism,
		DefaultTimeout:  cfg.Search.QueryTimeout,
		DefaultTopN:     cfg.Search.DefaultTopN,
		MaxTopN:         cfg.Search.MaxTopN,
		Similarity:      similarity,
		Relations:       rels,
		Metrics:         m,
		TraceSampleRate: cfg.Tracing.SampleRate,
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cache.Options{TTL: cfg.Redis.CacheTTL, Metrics: m})
			checker.Register("redis", health.Ping(redisClient, false))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	reloadOpts := reload.Options{Metrics: m, Grace: 2 * cfg.Search.QueryTimeout}
	if queryCache != nil {
		reloadOpts.Cache = queryCache
	}
	reloader := reload.New(exec, cfg.Indexer.DataDir, reloadOpts)
	if err := reloader.LoadLatest(ctx); err != nil {
		if !errors.Is(err, segment.ErrNoSegments) {
			slog.Error("loading segment failed", "error", err)
			os.Exit(1)
		}
		slog.Warn("no segment yet, serving an empty index", "data_dir", cfg.Indexer.DataDir)
	}
	checker.Register("segment", health.Ping(reloader, false))

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents,
			kafka.WithLeaderAck(), kafka.WithBatching(500, 50*time.Millisecond))
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()

		// Every searcher instance must see every announcement.
		group := fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
		listener := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, reloader.HandleIndexComplete(), kafka.WithGroupID(group))
		go func() {
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("index.complete listener stopped", "error", err)
			}
		}()
		slog.Info("listening for new segments", "topic", cfg.Kafka.Topics.IndexComplete, "group", group)
	}

	h := handler.New(exec, dsl.NewRegistry(), handler.Options{
		Cache:     queryCache,
		Collector: collector,
		Metrics:   m,
	})
	mux := http.NewServeMux()
	routes := h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Deadline(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m, routes...)(chain)
	chain = middleware.Logging(chain)
	if len(cfg.Server.AllowOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.AllowOrigins)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "routes", len(routes))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
