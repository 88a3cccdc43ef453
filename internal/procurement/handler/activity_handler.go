package handler

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/gin-gonic/gin"
)

// ActivityHandler 审计日志与通知查询
type ActivityHandler struct {
	repos *repository.Repositories
}

func NewActivityHandler(repos *repository.Repositories) *ActivityHandler {
	return &ActivityHandler{repos: repos}
}

// List 审计日志
// GET /api/v1/activity?entity_type=&entity_id=
func (h *ActivityHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.repos.ForCompany(GetCompanyID(c)).ActivityLog.FindByEntity(
		c.Request.Context(), c.Query("entity_type"), c.Query("entity_id"), page, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, newListResponse(items, page, pageSize, total))
}

// Notifications 站内通知
// GET /api/v1/notifications?type=budget_alert&page=&page_size=
func (h *ActivityHandler) Notifications(c *gin.Context) {
	page, pageSize := GetPagination(c)
	typ := c.DefaultQuery("type", "budget_alert")
	items, total, err := h.repos.ForCompany(GetCompanyID(c)).Notification.FindByType(c.Request.Context(), typ, page, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, newListResponse(items, page, pageSize, total))
}
