// Command ingestion accepts documents at POST /api/v1/documents and
// /api/v1/documents/batch and publishes them to the ingest topic.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/middleware"
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
	if !cfg.Kafka.Enabled {
		slog.Error("ingestion requires kafka.enabled")
		os.Exit(1)
	}
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.DocumentIngest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port, nil)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()

	checker := health.NewChecker(2 * time.Second)
	mux := http.NewServeMux()
	routes := ingestion.NewHandler(producer).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m, routes...)(chain)
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

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
