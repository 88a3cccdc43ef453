package handler

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// ExpenseHandler 费用处理器
type ExpenseHandler struct {
	svc *service.ExpenseService
}

func NewExpenseHandler(svc *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{svc: svc}
}

// Create 登记费用
func (h *ExpenseHandler) Create(c *gin.Context) {
	var req service.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), GetCompanyID(c), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, result)
}

// List 费用列表
func (h *ExpenseHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := queryFilters(c, "project_id", "status")

	items, total, err := h.svc.List(c.Request.Context(), GetCompanyID(c), page, pageSize, filters)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, newListResponse(items, page, pageSize, total))
}

// Approve 审批通过
func (h *ExpenseHandler) Approve(c *gin.Context) {
	result, err := h.svc.Approve(c.Request.Context(), GetCompanyID(c), GetUserID(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// Reject 审批驳回
func (h *ExpenseHandler) Reject(c *gin.Context) {
	result, err := h.svc.Reject(c.Request.Context(), GetCompanyID(c), GetUserID(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}
