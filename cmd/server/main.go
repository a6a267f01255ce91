// The server exposes the operator API: orphan reports and recovery
// transaction creation.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/domain/orphan"
	"stocksync/internal/domain/recovery"
	"stocksync/internal/domain/saga"
	"stocksync/internal/infrastructure/storage/postgres"
	"stocksync/internal/server"
	"stocksync/pkg/logger"
	"stocksync/pkg/numerator"
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

	suppliers := postgres.NewSupplierRepo(txm)
	units := postgres.NewUnitRepo(txm)
	transactions := postgres.NewTransactionRepo(txm)
	orphans := postgres.NewOrphanRepo(txm)
	sagas := postgres.NewSagaRepo(txm)

	detector := orphan.NewDetector(orphans, transactions, log)
	coordinator := saga.NewCoordinator(sagas, log)
	numbers := numerator.New(pool.Pool)

	builder := recovery.NewBuilder(suppliers, units, transactions, coordinator, numbers, txm, log)

	srv := server.New(cfg.Port, detector, builder, pool.Pool, cfg.IsDevelopment(), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalw("http server failed", "error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}

	log.Infow("server shut down")
}
