package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DashboardSummary 公司看板汇总
type DashboardSummary struct {
	CompanyID         string    `json:"company_id"`
	Projects          int64     `json:"projects"`
	TotalBudget       float64   `json:"total_budget"`
	TotalActualCost   float64   `json:"total_actual_cost"`
	TotalVariance     float64   `json:"total_variance"`
	BudgetUsedPercent float64   `json:"budget_used_percent"`
	OpenOrders        int64     `json:"open_orders"`
	PendingDeliveries int64     `json:"pending_deliveries"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// DashboardService computes company summaries, cached in Redis when available.
type DashboardService struct {
	repos  *repository.Repositories
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDashboardService(repos *repository.Repositories, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *DashboardService {
	return &DashboardService{repos: repos, rdb: rdb, ttl: ttl, logger: logger}
}

func dashboardCacheKey(companyID string) string {
	return "siteproc:dashboard:" + companyID
}

// Summary 获取看板汇总（优先读缓存）
func (s *DashboardService) Summary(ctx context.Context, companyID string) (*DashboardSummary, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, dashboardCacheKey(companyID)).Bytes()
		if err == nil {
			var summary DashboardSummary
			if err := json.Unmarshal(cached, &summary); err == nil {
				return &summary, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Dashboard cache read failed", zap.String("company_id", companyID), zap.Error(err))
		}
	}

	summary, err := s.compute(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil && s.ttl > 0 {
		if data, err := json.Marshal(summary); err == nil {
			if err := s.rdb.Set(ctx, dashboardCacheKey(companyID), data, s.ttl).Err(); err != nil {
				s.logger.Warn("Dashboard cache write failed", zap.String("company_id", companyID), zap.Error(err))
			}
		}
	}
	return summary, nil
}

func (s *DashboardService) compute(ctx context.Context, companyID string) (*DashboardSummary, error) {
	tenant := s.repos.ForCompany(companyID)

	totals, err := tenant.Project.Totals(ctx)
	if err != nil {
		return nil, err
	}
	openOrders, err := tenant.Order.CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := tenant.Delivery.CountByStatus(ctx, entity.DeliveryStatusPending)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		CompanyID:         companyID,
		Projects:          totals.Count,
		TotalBudget:       totals.Budget,
		TotalActualCost:   totals.ActualCost,
		TotalVariance:     totals.Variance,
		BudgetUsedPercent: UsagePercent(decimal.NewFromFloat(totals.Budget), decimal.NewFromFloat(totals.ActualCost)).Round(1).InexactFloat64(),
		OpenOrders:        openOrders,
		PendingDeliveries: pending,
		GeneratedAt:       time.Now(),
	}, nil
}

// Invalidate 清除公司看板缓存
func (s *DashboardService) Invalidate(ctx context.Context, companyID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, dashboardCacheKey(companyID)).Err(); err != nil {
		s.logger.Warn("Dashboard cache invalidation failed", zap.String("company_id", companyID), zap.Error(err))
	}
}

// DashboardBus drops the cached summary of a company before forwarding its
// dashboard event, so clients refreshing on the event read fresh figures.
type DashboardBus struct {
	Broadcaster
	dashboard *DashboardService
}

func NewDashboardBus(next Broadcaster, dashboard *DashboardService) *DashboardBus {
	return &DashboardBus{Broadcaster: next, dashboard: dashboard}
}

func (b *DashboardBus) BroadcastDashboardUpdated(companyID string) {
	b.dashboard.Invalidate(context.Background(), companyID)
	b.Broadcaster.BroadcastDashboardUpdated(companyID)
}
