package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"absensi/internal/config"
	"absensi/internal/logging"
	"absensi/internal/outbox"
	"absensi/internal/sheetclient"
	"absensi/internal/store"
)

// Worker replays spreadsheet writes the API could not deliver.
func main() {
	cfg := config.Load()
	log := logging.New(cfg).Named("worker")
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		return errors.New("worker needs QUEUE_BACKEND=redis; the memory outbox is replayed inside the api process")
	}
	if cfg.SheetURL == "" {
		return errors.New("SHEET_URL is required")
	}

	rdb, err := store.NewRedis(ctx, cfg.RedisAddr, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	r := &outbox.Replayer{
		Queue:       outbox.NewRedisQueue(rdb.Client, cfg.OutboxKey),
		Writer:      sheetclient.New(cfg.SheetURL, cfg.SheetTimeout, log.Named("sheet")),
		MaxAttempts: cfg.OutboxMaxAttempts,
		Backoff:     cfg.OutboxBackoff,
		Log:         log,
	}
	return r.Run(ctx)
}
