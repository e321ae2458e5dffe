package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/ragserve/config"
	"github.com/mohammad-safakhou/ragserve/internal/query"
	"github.com/mohammad-safakhou/ragserve/internal/queue/streams"
	"github.com/mohammad-safakhou/ragserve/internal/rag"
	"github.com/mohammad-safakhou/ragserve/internal/store"
	"github.com/mohammad-safakhou/ragserve/internal/worker"
	"github.com/mohammad-safakhou/ragserve/provider"
)

const workerGroup = "query-workers"

func workerCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run async query completion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runWorker(cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

func runWorker(cfg *config.Config) error {
	if cfg.Query.WorkerStream == "" {
		return fmt.Errorf("query.worker_stream not configured")
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("worker redis ping: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	if err := streams.EnsureGroup(ctx, rdb, cfg.Query.WorkerStream, workerGroup); err != nil {
		return fmt.Errorf("worker ensure group: %w", err)
	}

	llm, err := provider.NewProvider(cfg.LLM, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)
	pipeline := &rag.Pipeline{
		Retriever: &rag.Retriever{Store: st, Embedder: llm},
		Generator: llm,
		TopK:      cfg.Retrieval.TopK,
		Logger:    logger,
	}
	manager := &query.Manager{
		Store:    st,
		Pipeline: pipeline,
		MaxChars: cfg.Query.MaxChars,
		Logger:   logger,
	}

	consumerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	processor := &worker.Processor{
		Logger:    logger,
		Completer: manager,
		Consumer:  streams.NewConsumer(rdb, workerGroup, consumerName),
		Stream:    cfg.Query.WorkerStream,
		Processed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragserve_worker_queries_completed_total",
			Help: "Queries completed by the async worker.",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragserve_worker_queries_failed_total",
			Help: "Queries whose async completion failed.",
		}),
	}

	return processor.Start(ctx)
}
