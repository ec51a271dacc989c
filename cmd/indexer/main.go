package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	loadPath := flag.String("load", "", "NDJSON file of documents to index before consuming")
	once := flag.Bool("once", false, "exit after -load instead of consuming from kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "data_dir", cfg.Indexer.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port, nil)
	}

	var publisher indexer.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		publisher = producer
	}
	engine, err := indexer.NewEngine(ctx, cfg.Indexer, publisher, m)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}

	if *loadPath != "" {
		if err := bulkLoad(ctx, engine, *loadPath); err != nil {
			slog.Error("bulk load failed", "file", *loadPath, "error", err)
			os.Exit(1)
		}
	}
	if *once || !cfg.Kafka.Enabled {
		if !cfg.Kafka.Enabled && !*once {
			slog.Warn("kafka disabled, nothing to consume")
		}
		return
	}

	engine.StartFlushLoop(ctx)
	ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine), kafka.FromFirstOffset())
	slog.Info("indexer consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := ingest.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing before shutdown")
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := engine.Flush(flushCtx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer service stopped", "docs", engine.DocCount())
}

func bulkLoad(ctx context.Context, engine *indexer.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	n, err := engine.LoadNDJSON(ctx, f)
	if err != nil {
		return err
	}
	segPath, err := engine.Flush(ctx)
	if err != nil {
		return err
	}
	slog.Info("bulk load complete",
		"docs", n,
		"segment", segPath,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
