package main

import (
	"fmt"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconcileCompany string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute order progress and project actuals",
	Long: `Recompute delivery progress for every purchase order and actual cost
for every project, writing only the aggregates that drifted.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCompany, "company", "", "only reconcile this company")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, zapLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	db, err := initDatabase(cfg.Database, gormLogLevel(cfg))
	if err != nil {
		return err
	}

	// 离线执行，没有在线的 SSE 客户端
	hub := sse.NewHub(zapLogger)
	rdb := initRedisIfEnabled(cmd.Context(), cfg, zapLogger)
	var bus service.Broadcaster = hub
	if rdb != nil {
		bus = sse.NewRelay(hub, rdb, zapLogger)
		defer rdb.Close()
	}

	svc := service.NewServices(repository.NewRepositories(db), rdb, bus, zapLogger, service.Options{
		ExpenseStatuses:   cfg.Reconcile.ExpenseStatuses,
		DashboardCacheTTL: cfg.Dashboard.CacheTTL,
	})

	var result service.SweepResult
	if reconcileCompany != "" {
		result, err = svc.Reconciler.SweepCompany(cmd.Context(), reconcileCompany)
	} else {
		result, err = svc.Reconciler.SweepAll(cmd.Context())
	}
	if err != nil {
		zapLogger.Error("Reconciliation sweep aborted", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "companies=%d orders=%d projects=%d updated=%d failed=%d\n",
		result.Companies, result.Orders, result.Projects, result.Updated, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d aggregates failed to reconcile", result.Failed)
	}
	return nil
}
