package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mysql_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-ledger-engine/internal/config"
	"github.com/JoeShih716/go-ledger-engine/pkg/logger"
	"github.com/JoeShih716/go-ledger-engine/pkg/mysql"
	"github.com/JoeShih716/go-ledger-engine/pkg/postgres"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			switch cfg.Storage.Driver {
			case config.DriverMySQL:
				client, err := mysql.NewClient(ctx, cfg.MySQL, log)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := mysql_adapter.NewMySQLLedger(client).AutoMigrate(ctx); err != nil {
					return err
				}
				log.Info("MySQL schema migrated")

			case config.DriverPostgres:
				client, err := postgres.NewClient(ctx, cfg.Postgres, log)
				if err != nil {
					return err
				}
				defer client.Close()
				return postgres_adapter.Migrate(client.DB(), log)

			default:
				log.Info("Storage driver has no schema to migrate", zap.String("driver", cfg.Storage.Driver))
			}
			return nil
		},
	}
}
