package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OutcomeStatus 对账结果
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the result of one reconciliation step. A step never returns an
// error to its caller; failures are reported here instead.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Err    error         `json:"-"`
}

func succeeded() Outcome { return Outcome{Status: OutcomeOK} }

func skipped(reason string) Outcome { return Outcome{Status: OutcomeSkipped, Reason: reason} }

func failed(err error) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: err.Error(), Err: err}
}

func (o Outcome) OK() bool      { return o.Status == OutcomeOK }
func (o Outcome) Skipped() bool { return o.Status == OutcomeSkipped }
func (o Outcome) Failed() bool  { return o.Status == OutcomeFailed }

// Report summarises one orchestrator run for a delivery.
type Report struct {
	DeliveryID     string          `json:"delivery_id"`
	Delivery       Outcome         `json:"delivery"`
	Order          Outcome         `json:"order"`
	Project        Outcome         `json:"project"`
	DeliveredValue decimal.Decimal `json:"delivered_value"`
}

// Failed reports whether any step of the run failed.
func (r Report) Failed() bool {
	return r.Delivery.Failed() || r.Order.Failed() || r.Project.Failed()
}

// 跳过原因
const (
	ReasonDeliveryNotFound = "delivery not found"
	ReasonOrderNotFound    = "order not found"
	ReasonProjectNotFound  = "project not found"
	ReasonNoOrder          = "delivery has no linked order"
	ReasonNoProject        = "delivery has no linked project"
	ReasonUnchanged        = "actuals unchanged"

	ReasonProgressUnchanged = "progress unchanged"
)

// errUnchanged rolls back an updater transaction when nothing needs writing.
var errUnchanged = errors.New("aggregates unchanged")

func progressDrifted(order *entity.PurchaseOrder, p repository.OrderProgress) bool {
	return order.DeliveryProgress != p.DeliveryProgress ||
		!decimal.NewFromFloat(order.DeliveredQty).Equal(decimal.NewFromFloat(p.DeliveredQty)) ||
		!decimal.NewFromFloat(order.RemainingQty).Equal(decimal.NewFromFloat(p.RemainingQty)) ||
		!decimal.NewFromFloat(order.DeliveredValue).Equal(decimal.NewFromFloat(p.DeliveredValue))
}

// ReconcileOptions 对账配置
type ReconcileOptions struct {
	// ExpenseStatuses restricts which expenses count toward actual cost; empty counts all.
	ExpenseStatuses []string
}

// Reconciler keeps purchase order and project aggregates in line with their
// deliveries and expenses.
type Reconciler struct {
	repos   *repository.Repositories
	auditor Auditor
	bus     Broadcaster
	budget  *BudgetMonitor
	opts    ReconcileOptions
	logger  *zap.Logger
}

// NewReconciler 创建对账器
func NewReconciler(repos *repository.Repositories, auditor Auditor, bus Broadcaster, logger *zap.Logger, opts ReconcileOptions) *Reconciler {
	return &Reconciler{
		repos:   repos,
		auditor: auditor,
		bus:     bus,
		opts:    opts,
		logger:  logger,
	}
}

// SetBudgetMonitor enables budget alerts after project actuals change.
func (r *Reconciler) SetBudgetMonitor(m *BudgetMonitor) {
	r.budget = m
}

// Reconcile is the entry point after a delivery is created, updated or
// archived. It recomputes the linked order and project aggregates.
func (r *Reconciler) Reconcile(ctx context.Context, companyID, deliveryID, userID string) (report Report) {
	report = Report{
		DeliveryID:     deliveryID,
		Order:          skipped(ReasonNoOrder),
		Project:        skipped(ReasonNoProject),
		DeliveredValue: decimal.Zero,
	}
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("reconcile panic: %v", rec)
			r.logger.Error("Reconciliation panicked",
				zap.String("company_id", companyID),
				zap.String("delivery_id", deliveryID),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			report.Delivery = failed(err)
		}
	}()

	tenant := r.repos.ForCompany(companyID)
	delivery, err := tenant.Delivery.FindByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("Reconciliation skipped: delivery not found",
				zap.String("company_id", companyID), zap.String("delivery_id", deliveryID))
			report.Delivery = skipped(ReasonDeliveryNotFound)
			return report
		}
		r.logger.Error("Reconciliation failed to load delivery",
			zap.String("company_id", companyID), zap.String("delivery_id", deliveryID), zap.Error(err))
		report.Delivery = failed(err)
		return report
	}
	report.Delivery = succeeded()

	totals, err := tenant.Delivery.ItemTotals(ctx, delivery.ID)
	if err != nil {
		// 仅用于日志，不影响聚合
		r.logger.Warn("Failed to sum delivery items", zap.String("delivery_id", delivery.ID), zap.Error(err))
	} else {
		report.DeliveredValue = totals.Value.Round(2)
	}

	if delivery.OrderID != nil && *delivery.OrderID != "" {
		report.Order = r.UpdateOrderProgress(ctx, companyID, *delivery.OrderID, delivery.Status, report.DeliveredValue, userID)
	}
	if delivery.ProjectID != nil && *delivery.ProjectID != "" {
		report.Project = r.UpdateProjectActuals(ctx, companyID, *delivery.ProjectID, userID)
	}

	r.logger.Info("Delivery reconciled",
		zap.String("company_id", companyID),
		zap.String("delivery_id", delivery.ID),
		zap.Stringp("order_id", delivery.OrderID),
		zap.Stringp("project_id", delivery.ProjectID),
		zap.String("status", string(delivery.Status)),
		zap.String("delivered_value", report.DeliveredValue.StringFixed(2)),
		zap.String("order_outcome", string(report.Order.Status)),
		zap.String("project_outcome", string(report.Project.Status)))
	return report
}

// UpdateOrderProgress recomputes an order's delivered quantity, remaining
// quantity, delivered value and progress from every non-archived delivery
// referencing it. trigger and addedValue describe the delivery that caused
// the run and are only used for audit context and logging.
func (r *Reconciler) UpdateOrderProgress(ctx context.Context, companyID, orderID string, trigger entity.DeliveryStatus, addedValue decimal.Decimal, userID string) Outcome {
	return r.updateOrder(ctx, companyID, orderID, trigger, addedValue, userID, false)
}

// updateOrder 重算订单聚合；onlyDrifted 为 true 时聚合未变化则不写（巡检使用）
func (r *Reconciler) updateOrder(ctx context.Context, companyID, orderID string, trigger entity.DeliveryStatus, addedValue decimal.Decimal, userID string, onlyDrifted bool) (outcome Outcome) {
	defer r.recoverStep("order", orderID, &outcome)

	var (
		previous entity.DeliveryProgress
		progress repository.OrderProgress
	)
	err := r.repos.ForCompany(companyID).Transaction(ctx, func(tx *repository.Tenant) error {
		order, err := tx.Order.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.DeliveryProgress

		totals, err := tx.Delivery.OrderItemTotals(ctx, orderID)
		if err != nil {
			return fmt.Errorf("sum order items: %w", err)
		}

		label, remaining := ComputeOrderProgress(decimal.NewFromFloat(order.EffectiveOrderedQty()), totals.Quantity)
		progress = repository.OrderProgress{
			DeliveredQty:     totals.Quantity.InexactFloat64(),
			RemainingQty:     remaining.InexactFloat64(),
			DeliveredValue:   totals.Value.Round(2).InexactFloat64(),
			DeliveryProgress: label,
		}
		if onlyDrifted && !progressDrifted(order, progress) {
			return errUnchanged
		}
		return tx.Order.UpdateProgress(ctx, orderID, progress)
	})
	if err != nil {
		if errors.Is(err, errUnchanged) {
			return skipped(ReasonProgressUnchanged)
		}
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("Order progress skipped: order not found",
				zap.String("company_id", companyID), zap.String("order_id", orderID))
			return skipped(ReasonOrderNotFound)
		}
		r.logger.Error("Failed to update order progress",
			zap.String("company_id", companyID), zap.String("order_id", orderID), zap.Error(err))
		return failed(err)
	}

	r.audit(ctx, companyID, userID, EntityOrder, orderID, "delivery_progress_updated", map[string]interface{}{
		"previous_progress": string(previous),
		"new_progress":      string(progress.DeliveryProgress),
		"delivered_qty":     progress.DeliveredQty,
		"remaining_qty":     progress.RemainingQty,
		"delivered_value":   progress.DeliveredValue,
		"trigger_status":    string(trigger),
	})

	r.bus.Broadcast(companyID, sse.OrderChannel(orderID), "updated", map[string]interface{}{
		"id":                orderID,
		"delivered_qty":     progress.DeliveredQty,
		"remaining_qty":     progress.RemainingQty,
		"delivered_value":   progress.DeliveredValue,
		"delivery_progress": progress.DeliveryProgress,
	})
	r.bus.BroadcastDashboardUpdated(companyID)

	r.logger.Info("Order progress updated",
		zap.String("company_id", companyID),
		zap.String("order_id", orderID),
		zap.String("previous", string(previous)),
		zap.String("progress", string(progress.DeliveryProgress)),
		zap.Float64("delivered_qty", progress.DeliveredQty),
		zap.String("added_value", addedValue.StringFixed(2)))
	return succeeded()
}

// UpdateProjectActuals recomputes a project's actual cost and variance. It
// writes, audits and broadcasts only when either value changed.
func (r *Reconciler) UpdateProjectActuals(ctx context.Context, companyID, projectID, userID string) (outcome Outcome) {
	defer r.recoverStep("project", projectID, &outcome)

	var (
		project *entity.Project
		actuals Actuals
	)
	err := r.repos.ForCompany(companyID).Transaction(ctx, func(tx *repository.Tenant) error {
		var err error
		project, err = tx.Project.FindForUpdate(ctx, projectID)
		if err != nil {
			return err
		}

		delivered, err := tx.Delivery.ProjectDeliveredTotals(ctx, projectID)
		if err != nil {
			return fmt.Errorf("sum delivered items: %w", err)
		}
		expenses, err := tx.Expense.SumForProject(ctx, projectID, r.opts.ExpenseStatuses)
		if err != nil {
			return fmt.Errorf("sum expenses: %w", err)
		}

		actuals = ComputeActuals(decimal.NewFromFloat(project.Budget), delivered.Value, expenses)
		if !actuals.Changed(project) {
			return errUnchanged
		}
		return tx.Project.UpdateActuals(ctx, projectID, actuals.ActualCost.InexactFloat64(), actuals.Variance.InexactFloat64())
	})
	switch {
	case errors.Is(err, errUnchanged):
		r.logger.Debug("Project actuals unchanged", zap.String("company_id", companyID), zap.String("project_id", projectID))
		return skipped(ReasonUnchanged)
	case errors.Is(err, repository.ErrNotFound):
		r.logger.Warn("Project actuals skipped: project not found",
			zap.String("company_id", companyID), zap.String("project_id", projectID))
		return skipped(ReasonProjectNotFound)
	case err != nil:
		r.logger.Error("Failed to update project actuals",
			zap.String("company_id", companyID), zap.String("project_id", projectID), zap.Error(err))
		return failed(err)
	}

	r.audit(ctx, companyID, userID, EntityProject, projectID, "actuals_auto_updated", map[string]interface{}{
		"old_actual_cost":  project.ActualCost,
		"new_actual_cost":  actuals.ActualCost.InexactFloat64(),
		"old_variance":     project.Variance,
		"new_variance":     actuals.Variance.InexactFloat64(),
		"delivered_amount": actuals.DeliveredAmount.InexactFloat64(),
		"expense_amount":   actuals.ExpenseAmount.InexactFloat64(),
	})

	r.bus.Broadcast(companyID, sse.ProjectChannel(projectID), "updated", map[string]interface{}{
		"id":          projectID,
		"budget":      project.Budget,
		"actual_cost": actuals.ActualCost.InexactFloat64(),
		"variance":    actuals.Variance.InexactFloat64(),
	})
	r.bus.BroadcastDashboardUpdated(companyID)

	if r.budget != nil {
		r.budget.Check(ctx, companyID, project, decimal.NewFromFloat(project.ActualCost), actuals.ActualCost)
	}

	r.logger.Info("Project actuals updated",
		zap.String("company_id", companyID),
		zap.String("project_id", projectID),
		zap.String("actual_cost", actuals.ActualCost.StringFixed(2)),
		zap.String("variance", actuals.Variance.StringFixed(2)))
	return succeeded()
}

// audit 写审计日志；失败只记录日志
func (r *Reconciler) audit(ctx context.Context, companyID, userID, entityType, entityID, action string, metadata map[string]interface{}) {
	if err := r.auditor.Record(ctx, companyID, userID, entityType, entityID, action, metadata); err != nil {
		r.logger.Warn("Failed to record audit entry",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (r *Reconciler) recoverStep(kind, id string, outcome *Outcome) {
	if rec := recover(); rec != nil {
		r.logger.Error("Reconciliation step panicked",
			zap.String("step", kind),
			zap.String("id", id),
			zap.Any("panic", rec),
			zap.Stack("stack"))
		*outcome = failed(fmt.Errorf("%s reconcile panic: %v", kind, rec))
	}
}
