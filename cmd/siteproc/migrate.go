package main

import (
	"fmt"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, zapLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	db, err := initDatabase(cfg.Database, gormLogLevel(cfg))
	if err != nil {
		return err
	}

	models := entity.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	zapLogger.Info("Database migrated", zap.Int("tables", len(models)))
	return nil
}
