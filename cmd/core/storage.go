package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	httpadapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
	"github.com/JoeShih716/go-ledger-engine/internal/config"
	"github.com/JoeShih716/go-ledger-engine/pkg/mysql"
	"github.com/JoeShih716/go-ledger-engine/pkg/postgres"
	"github.com/JoeShih716/go-ledger-engine/pkg/wal"
)

// storage 依設定選出的 Ledger 與它的健康檢查、關閉函式
type storage struct {
	ledger usecase.Ledger
	pinger httpadapter.Pinger
	close  func() error
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		client, err := mysql.NewClient(ctx, cfg.MySQL, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			ledger: mysql_adapter.NewMySQLLedger(client),
			pinger: client,
			close:  client.Close,
		}, nil

	case config.DriverPostgres:
		client, err := postgres.NewClient(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			ledger: postgres_adapter.NewPostgresLedger(client),
			pinger: client,
			close:  client.Close,
		}, nil

	case config.DriverMemory:
		var opts []memory_adapter.Option
		closeWAL := func() error { return nil }
		if cfg.Storage.WALPath != "" {
			walFile, err := wal.Open(cfg.Storage.WALPath, wal.WithLogger(log.Named("wal")))
			if err != nil {
				return nil, fmt.Errorf("failed to open WAL: %w", err)
			}
			opts = append(opts, memory_adapter.WithWAL(walFile))
			closeWAL = walFile.Close
		}
		ledger, err := memory_adapter.NewMemoryLedger(opts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to init memory ledger: %w", err), closeWAL())
		}
		log.Info("Using in-memory ledger", zap.String("wal_path", cfg.Storage.WALPath))
		return &storage{
			ledger: ledger,
			pinger: ledger,
			close:  closeWAL,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
