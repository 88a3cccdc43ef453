package service

import (
	"context"
	"fmt"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertLevel 预算告警级别
type AlertLevel string

const (
	AlertNone     AlertLevel = ""
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
	AlertExceeded AlertLevel = "exceeded"
)

const NotificationBudgetAlert = "budget_alert"

// 阈值从高到低
var budgetThresholds = []struct {
	percent int64
	level   AlertLevel
}{
	{100, AlertExceeded},
	{90, AlertCritical},
	{75, AlertWarning},
}

// UsagePercent returns spent as a percentage of budget; zero budget yields zero.
func UsagePercent(budget, spent decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(budget).Mul(decimal.NewFromInt(100))
}

// BudgetAlertLevel returns the highest threshold crossed going from
// previousSpent to spent, or AlertNone when no threshold was newly crossed.
func BudgetAlertLevel(budget, spent, previousSpent decimal.Decimal) AlertLevel {
	current := UsagePercent(budget, spent)
	previous := UsagePercent(budget, previousSpent)
	for _, t := range budgetThresholds {
		limit := decimal.NewFromInt(t.percent)
		if current.GreaterThanOrEqual(limit) && previous.LessThan(limit) {
			return t.level
		}
	}
	return AlertNone
}

// BudgetMonitor raises in-app budget alerts when a project's actual cost
// crosses 75%, 90% or 100% of its budget.
type BudgetMonitor struct {
	repos  *repository.Repositories
	bus    Broadcaster
	logger *zap.Logger
}

func NewBudgetMonitor(repos *repository.Repositories, bus Broadcaster, logger *zap.Logger) *BudgetMonitor {
	return &BudgetMonitor{repos: repos, bus: bus, logger: logger}
}

// Check compares the project's budget usage before and after a change and
// records a notification for a newly crossed threshold.
func (m *BudgetMonitor) Check(ctx context.Context, companyID string, project *entity.Project, previousSpent, spent decimal.Decimal) AlertLevel {
	budget := decimal.NewFromFloat(project.Budget)
	level := BudgetAlertLevel(budget, spent, previousSpent)
	if level == AlertNone {
		return AlertNone
	}

	percent := UsagePercent(budget, spent).Round(1)
	title := fmt.Sprintf("Budget Warning - %s", project.Name)
	if level == AlertExceeded {
		title = fmt.Sprintf("Budget Exceeded - %s", project.Name)
	}
	n := &entity.Notification{
		Type:    NotificationBudgetAlert,
		Title:   title,
		Message: fmt.Sprintf("Project budget is at %s%% (%s/%s)", percent.StringFixed(1), spent.StringFixed(2), budget.StringFixed(2)),
		Link:    "/projects/" + project.ID,
		Metadata: entity.JSONB{
			"project_id":      project.ID,
			"project_name":    project.Name,
			"budget":          project.Budget,
			"spent":           spent.InexactFloat64(),
			"percentage_used": percent.InexactFloat64(),
			"threshold":       string(level),
		},
	}
	if err := m.repos.ForCompany(companyID).Notification.Create(ctx, n); err != nil {
		m.logger.Warn("Failed to record budget alert",
			zap.String("project_id", project.ID), zap.String("level", string(level)), zap.Error(err))
	}

	m.bus.Broadcast(companyID, sse.CompanyChannel(companyID), NotificationBudgetAlert, n)
	m.logger.Info("Budget alert raised",
		zap.String("company_id", companyID),
		zap.String("project_id", project.ID),
		zap.String("level", string(level)),
		zap.String("percentage_used", percent.StringFixed(1)))
	return level
}
