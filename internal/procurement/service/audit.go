package service

import (
	"context"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
)

// ActivityAuditor writes audit entries to the activity_logs table.
type ActivityAuditor struct {
	repos *repository.Repositories
}

func NewActivityAuditor(repos *repository.Repositories) *ActivityAuditor {
	return &ActivityAuditor{repos: repos}
}

// Record 记录审计日志
func (a *ActivityAuditor) Record(ctx context.Context, companyID, userID, entityType, entityID, action string, metadata map[string]interface{}) error {
	return a.repos.ForCompany(companyID).ActivityLog.Create(ctx, &entity.ActivityLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Metadata:   entity.JSONB(metadata),
		OperatorID: userID,
	})
}
