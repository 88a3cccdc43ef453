package service

import (
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options 服务装配参数
type Options struct {
	ExpenseStatuses   []string
	DashboardCacheTTL time.Duration
	// ProofStore is nil when object storage is not configured.
	ProofStore ProofStore
}

// Services 服务集合
type Services struct {
	Reconciler *Reconciler
	Delivery   *DeliveryService
	Expense    *ExpenseService
	Dashboard  *DashboardService
	Budget     *BudgetMonitor
}

// NewServices wires the services around one broadcaster. rdb may be nil, in
// which case the dashboard is computed on every request.
func NewServices(repos *repository.Repositories, rdb *redis.Client, bus Broadcaster, logger *zap.Logger, opts Options) *Services {
	auditor := NewActivityAuditor(repos)

	dashboard := NewDashboardService(repos, rdb, opts.DashboardCacheTTL, logger)
	bus = NewDashboardBus(bus, dashboard)

	reconciler := NewReconciler(repos, auditor, bus, logger, ReconcileOptions{ExpenseStatuses: opts.ExpenseStatuses})
	budget := NewBudgetMonitor(repos, bus, logger)
	reconciler.SetBudgetMonitor(budget)

	return &Services{
		Reconciler: reconciler,
		Delivery:   NewDeliveryService(repos, reconciler, auditor, bus, opts.ProofStore, logger),
		Expense:    NewExpenseService(repos, reconciler, auditor, bus, logger),
		Dashboard:  dashboard,
		Budget:     budget,
	}
}
