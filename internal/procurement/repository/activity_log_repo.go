package repository

import (
	"context"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
)

// ActivityLogRepository 审计日志仓库
type ActivityLogRepository struct {
	*scope
}

// Create 创建审计日志
func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	log.CompanyID = r.companyID
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByEntity 查询审计日志；entityType/entityID 为空时不过滤
func (r *ActivityLogRepository) FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	var items []entity.ActivityLog
	var total int64

	query := r.table(ctx, &entity.ActivityLog{})
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// NotificationRepository 通知仓库
type NotificationRepository struct {
	*scope
}

// Create 创建通知
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = newID()
	}
	n.CompanyID = r.companyID
	return r.db.WithContext(ctx).Create(n).Error
}

// FindByType 按类型分页查询通知
func (r *NotificationRepository) FindByType(ctx context.Context, typ string, page, pageSize int) ([]entity.Notification, int64, error) {
	var items []entity.Notification
	var total int64

	query := r.table(ctx, &entity.Notification{}).Where("type = ?", typ)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}
