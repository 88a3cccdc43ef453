package handler

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/middleware"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// maxProofSize 交付凭证上传上限 (10MB)
const maxProofSize = 10 << 20

// DeliveryHandler 交付处理器
type DeliveryHandler struct {
	svc *service.DeliveryService
}

func NewDeliveryHandler(svc *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{svc: svc}
}

// DeliveryResult 交付变更结果
type DeliveryResult struct {
	Delivery       *entity.Delivery `json:"delivery,omitempty"`
	Reconciliation service.Report   `json:"reconciliation"`
}

// Create 创建交付
// POST /api/v1/deliveries
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req service.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	delivery, report, err := h.svc.Create(c.Request.Context(), GetCompanyID(c), GetUserID(c), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, DeliveryResult{Delivery: delivery, Reconciliation: report})
}

// List 交付列表
// GET /api/v1/deliveries?project_id=&order_id=&status=
func (h *DeliveryHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := queryFilters(c, "project_id", "order_id", "status")

	items, total, err := h.svc.List(c.Request.Context(), GetCompanyID(c), page, pageSize, filters)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, newListResponse(items, page, pageSize, total))
}

// Get 交付详情
func (h *DeliveryHandler) Get(c *gin.Context) {
	delivery, err := h.svc.Get(c.Request.Context(), GetCompanyID(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, delivery)
}

// Update 更新交付状态与签收信息
// PATCH /api/v1/deliveries/:id
func (h *DeliveryHandler) Update(c *gin.Context) {
	var req service.UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	isAdmin := middleware.CurrentRole(c).AtLeast(middleware.RoleAdmin)
	delivery, report, err := h.svc.Update(c.Request.Context(), GetCompanyID(c), GetUserID(c), isAdmin, c.Param("id"), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, DeliveryResult{Delivery: delivery, Reconciliation: report})
}

// Archive 归档交付
// DELETE /api/v1/deliveries/:id
func (h *DeliveryHandler) Archive(c *gin.Context) {
	report, err := h.svc.Archive(c.Request.Context(), GetCompanyID(c), GetUserID(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, DeliveryResult{Reconciliation: report})
}

// UploadProof 上传交付凭证
// POST /api/v1/deliveries/:id/proof (multipart, field "file")
func (h *DeliveryHandler) UploadProof(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "File is required")
		return
	}
	if file.Size > maxProofSize {
		BadRequest(c, "File exceeds 10MB limit")
		return
	}

	f, err := file.Open()
	if err != nil {
		InternalError(c, "Failed to read file")
		return
	}
	defer f.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	delivery, err := h.svc.AttachProof(c.Request.Context(), GetCompanyID(c), GetUserID(c), c.Param("id"), f, file.Size, file.Filename, contentType)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, delivery)
}
