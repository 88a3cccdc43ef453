package handler

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ReconcileHandler exposes order/project aggregates and manual reconciliation.
type ReconcileHandler struct {
	reconciler *service.Reconciler
	repos      *repository.Repositories
}

func NewReconcileHandler(reconciler *service.Reconciler, repos *repository.Repositories) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, repos: repos}
}

// OrderProgress 订单交付进度
// GET /api/v1/orders/:id/progress
func (h *ReconcileHandler) OrderProgress(c *gin.Context) {
	order, err := h.repos.ForCompany(GetCompanyID(c)).Order.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"order_id":          order.ID,
		"ordered_qty":       order.EffectiveOrderedQty(),
		"delivered_qty":     order.DeliveredQty,
		"remaining_qty":     order.RemainingQty,
		"delivered_value":   order.DeliveredValue,
		"delivery_progress": order.DeliveryProgress,
		"updated_at":        order.UpdatedAt,
	})
}

// ProjectActuals 项目实际成本
// GET /api/v1/projects/:id/actuals
func (h *ReconcileHandler) ProjectActuals(c *gin.Context) {
	project, err := h.repos.ForCompany(GetCompanyID(c)).Project.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	usage := service.UsagePercent(decimal.NewFromFloat(project.Budget), decimal.NewFromFloat(project.ActualCost))
	Success(c, gin.H{
		"project_id":    project.ID,
		"budget":        project.Budget,
		"actual_cost":   project.ActualCost,
		"variance":      project.Variance,
		"usage_percent": usage.Round(1).InexactFloat64(),
	})
}

// ReconcileOrder 手动重算订单
func (h *ReconcileHandler) ReconcileOrder(c *gin.Context) {
	outcome := h.reconciler.UpdateOrderProgress(c.Request.Context(), GetCompanyID(c), c.Param("id"), "", decimal.Zero, GetUserID(c))
	h.respondOutcome(c, outcome)
}

// ReconcileProject 手动重算项目
func (h *ReconcileHandler) ReconcileProject(c *gin.Context) {
	outcome := h.reconciler.UpdateProjectActuals(c.Request.Context(), GetCompanyID(c), c.Param("id"), GetUserID(c))
	h.respondOutcome(c, outcome)
}

func (h *ReconcileHandler) respondOutcome(c *gin.Context, outcome service.Outcome) {
	if outcome.Skipped() && (outcome.Reason == service.ReasonOrderNotFound || outcome.Reason == service.ReasonProjectNotFound) {
		NotFound(c, outcome.Reason)
		return
	}
	if outcome.Failed() {
		InternalError(c, outcome.Reason)
		return
	}
	Success(c, outcome)
}

// SweepCompany 全量重算当前公司
// POST /api/v1/reconcile
func (h *ReconcileHandler) SweepCompany(c *gin.Context) {
	result, err := h.reconciler.SweepCompany(c.Request.Context(), GetCompanyID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}
