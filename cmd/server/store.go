package main

import (
	"context"
	"fmt"
	"log/slog"

	"support-chat/contract"
	"support-chat/infrastructure/postgres"
	"support-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
)

// store is the persistence gateway picked by STORAGE_DRIVER.
type store struct {
	sessions contract.ISessionRepository
	messages contract.IMessageRepository
	leases   contract.ILeaseRepository
	close    func()
}

func openStore(ctx context.Context, config Config, logger *slog.Logger) (store, error) {
	if config.StorageDriver == DriverPostgres {
		return openPostgres(config, logger)
	}
	return openBadger(ctx, config, logger)
}

func openBadger(ctx context.Context, config Config, logger *slog.Logger) (store, error) {
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return store{}, fmt.Errorf("database opening failed: %w", err)
	}
	seq, err := repositories.NewSequencer(db)
	if err != nil {
		_ = db.Close()
		return store{}, err
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectMapper)
	}

	return store{
		sessions: repositories.NewSessionRepository(db, seq, logger),
		messages: repositories.NewMessageRepository(db, seq, logger),
		leases:   repositories.NewLeaseRepository(db, config.LeaseRetention, logger),
		close: func() {
			logger.Info("Closing BadgerDB...")
			_ = seq.Release()
			_ = db.Close()
		},
	}, nil
}

func openPostgres(config Config, logger *slog.Logger) (store, error) {
	db, err := postgres.Connect(config.DatabaseURL, postgres.Options{Environment: config.Environment})
	if err != nil {
		return store{}, err
	}
	return store{
		sessions: postgres.NewSessionRepository(db, logger),
		messages: postgres.NewMessageRepository(db, logger),
		leases:   postgres.NewLeaseRepository(db, logger),
		close: func() {
			logger.Info("Closing PostgreSQL pool...")
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
