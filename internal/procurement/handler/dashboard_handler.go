package handler

import (
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// DashboardHandler 看板处理器
type DashboardHandler struct {
	svc *service.DashboardService
}

func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Summary GET /api/v1/dashboard/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), GetCompanyID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, summary)
}
