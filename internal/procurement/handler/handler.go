package handler

import (
	"errors"
	"strconv"

	"github.com/12313131dBossza/siteproc-sub003/internal/middleware"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Delivery  *DeliveryHandler
	Expense   *ExpenseHandler
	Reconcile *ReconcileHandler
	Activity  *ActivityHandler
	Dashboard *DashboardHandler
	SSE       *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, repos *repository.Repositories, hub *sse.Hub) *Handlers {
	return &Handlers{
		Delivery:  NewDeliveryHandler(svc.Delivery),
		Expense:   NewExpenseHandler(svc.Expense),
		Reconcile: NewReconcileHandler(svc.Reconciler, repos),
		Activity:  NewActivityHandler(repos),
		Dashboard: NewDashboardHandler(svc.Dashboard),
		SSE:       NewSSEHandler(hub),
	}
}

// RegisterRoutes mounts every endpoint on an authenticated group.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	deliveries := api.Group("/deliveries")
	{
		deliveries.GET("", h.Delivery.List)
		deliveries.GET("/:id", h.Delivery.Get)
		deliveries.POST("", middleware.RequireRole(middleware.RoleForeman), h.Delivery.Create)
		deliveries.PATCH("/:id", middleware.RequireRole(middleware.RoleEditor), h.Delivery.Update)
		deliveries.DELETE("/:id", middleware.RequireRole(middleware.RoleAdmin), h.Delivery.Archive)
		deliveries.POST("/:id/proof", middleware.RequireRole(middleware.RoleForeman), h.Delivery.UploadProof)
	}

	expenses := api.Group("/expenses")
	{
		expenses.GET("", h.Expense.List)
		expenses.POST("", middleware.RequireRole(middleware.RoleForeman), h.Expense.Create)
		expenses.POST("/:id/approve", middleware.RequireRole(middleware.RoleManager), h.Expense.Approve)
		expenses.POST("/:id/reject", middleware.RequireRole(middleware.RoleManager), h.Expense.Reject)
	}

	api.GET("/orders/:id/progress", h.Reconcile.OrderProgress)
	api.POST("/orders/:id/reconcile", middleware.RequireRole(middleware.RoleManager), h.Reconcile.ReconcileOrder)
	api.GET("/projects/:id/actuals", h.Reconcile.ProjectActuals)
	api.POST("/projects/:id/reconcile", middleware.RequireRole(middleware.RoleManager), h.Reconcile.ReconcileProject)
	api.POST("/reconcile", middleware.RequireRole(middleware.RoleAdmin), h.Reconcile.SweepCompany)

	api.GET("/activity", h.Activity.List)
	api.GET("/notifications", h.Activity.Notifications)
	api.GET("/dashboard/summary", h.Dashboard.Summary)
	api.GET("/sse/events", h.SSE.Stream)
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newListResponse(items interface{}, page, pageSize int, total int64) ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// 业务错误码
const (
	CodeInvalidTransition  = 40001
	CodeNoChanges          = 40002
	CodeInvalidStatus      = 40003
	CodeInvalidReference   = 40004
	CodeDeliveryLocked     = 40301
	CodeExpenseNotPending  = 40901
	CodeStorageUnavailable = 50301
)

// ServiceError maps service and repository errors onto business codes.
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "resource not found")
	case errors.Is(err, service.ErrInvalidTransition):
		Error(c, CodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrNoChanges):
		Error(c, CodeNoChanges, err.Error())
	case errors.Is(err, service.ErrInvalidStatus):
		Error(c, CodeInvalidStatus, err.Error())
	case errors.Is(err, service.ErrInvalidReference):
		Error(c, CodeInvalidReference, err.Error())
	case errors.Is(err, service.ErrDeliveryLocked):
		Error(c, CodeDeliveryLocked, err.Error())
	case errors.Is(err, service.ErrExpenseNotPending):
		Error(c, CodeExpenseNotPending, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		Error(c, CodeStorageUnavailable, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserID)
}

// GetCompanyID 从上下文获取公司ID
func GetCompanyID(c *gin.Context) string {
	return c.GetString(middleware.CtxCompanyID)
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// queryFilters 收集非空查询参数
func queryFilters(c *gin.Context, keys ...string) map[string]string {
	filters := make(map[string]string)
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			filters[k] = v
		}
	}
	return filters
}
