// Command analytics aggregates the query events published by the searchers
// and serves the running statistics at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	snapshotEvery := flag.Duration("snapshot-interval", time.Minute, "how often statistics are saved to postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(2 * time.Second)
	aggregator := analytics.NewAggregator()

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			checker.Register("postgres", health.Ping(pg, false))
			store := analytics.NewStore(pg.DB)
			if err := store.Migrate(ctx); err != nil {
				slog.Error("migrating analytics store", "error", err)
				os.Exit(1)
			}
			if last, err := store.LatestSnapshot(ctx); err != nil {
				slog.Warn("reading last snapshot", "error", err)
			} else if last != nil {
				slog.Info("previous snapshot found", "total_searches", last.TotalSearches, "failed_searches", last.FailedSearches)
			}
			store.StartPeriodicSave(ctx, aggregator, *snapshotEvery)
		}
	}

	if cfg.Kafka.Enabled {
		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, analytics.HandleEvent(aggregator),
			kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-analytics"))
		go func() {
			if err := events.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("query event consumer stopped", "error", err)
			}
		}()
		slog.Info("consuming query events", "topic", cfg.Kafka.Topics.QueryEvents)
	} else {
		slog.Warn("kafka disabled, no query events will arrive")
	}

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Logging(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
