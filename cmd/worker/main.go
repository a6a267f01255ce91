// The worker consumes the transaction change feed and reconciles inventory.
// It also runs the periodic orphan scan.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stocksync/internal/bus"
	"stocksync/internal/config"
	"stocksync/internal/domain/orphan"
	"stocksync/internal/domain/sync"
	"stocksync/internal/infrastructure/feed"
	"stocksync/internal/infrastructure/storage/postgres"
	"stocksync/internal/scheduler"
	"stocksync/internal/worker"
	"stocksync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Fatalw("failed to load config", "error", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Default().Fatalw("failed to build logger", "error", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	products := postgres.NewProductRepo(txm)
	units := postgres.NewUnitRepo(txm)
	transactions := postgres.NewTransactionRepo(txm)
	ledger := postgres.NewAppliedEventRepo(txm)
	orphans := postgres.NewOrphanRepo(txm)

	eventBus := bus.New(log, bus.WithQueueSize(cfg.QueueSize))
	eventBus.Start()
	defer eventBus.Stop()

	coordinator := sync.NewCoordinator(products, units, transactions, ledger, txm, eventBus, log)
	detector := orphan.NewDetector(orphans, transactions, log)

	sched := scheduler.New(detector, log)
	if err := sched.RegisterOrphanScan(cfg.OrphanCron); err != nil {
		log.Fatalw("failed to schedule orphan scan", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	messages := make(chan feed.Message, cfg.FeedBuffer)

	adapter := feed.New(pool.Pool, log)
	go func() {
		if err := adapter.Run(ctx, messages); err != nil && ctx.Err() == nil {
			log.Errorw("change feed stopped", "error", err)
		}
		close(messages)
	}()

	w := worker.New(coordinator, log,
		worker.WithShards(cfg.WorkerShards),
		worker.WithQueueSize(cfg.QueueSize),
	)

	log.Infow("worker starting", "shards", cfg.WorkerShards)
	w.Run(ctx, messages)

	log.Infow("worker shut down")
	os.Exit(0)
}
