package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"gorm.io/gorm/clause"
)

// OrderRepository 采购订单仓库
type OrderRepository struct {
	*scope
}

// Create 创建采购订单
func (r *OrderRepository) Create(ctx context.Context, o *entity.PurchaseOrder) error {
	if o.ID == "" {
		o.ID = newID()
	}
	o.CompanyID = r.companyID
	return r.db.WithContext(ctx).Create(o).Error
}

// FindByID 根据ID查找采购订单
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var o entity.PurchaseOrder
	if err := r.table(ctx, &entity.PurchaseOrder{}).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// FindForUpdate 查找并锁定订单行（postgres 下 SELECT ... FOR UPDATE）
func (r *OrderRepository) FindForUpdate(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var o entity.PurchaseOrder
	query := r.table(ctx, &entity.PurchaseOrder{}).Where("id = ?", id)
	if r.lockRows {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(&o).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// ListIDs 返回公司全部订单ID
func (r *OrderRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.table(ctx, &entity.PurchaseOrder{}).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// OrderProgress 订单交付聚合字段
type OrderProgress struct {
	DeliveredQty     float64
	RemainingQty     float64
	DeliveredValue   float64
	DeliveryProgress entity.DeliveryProgress
}

// UpdateProgress 回写订单交付聚合
func (r *OrderRepository) UpdateProgress(ctx context.Context, id string, p OrderProgress) error {
	res := r.table(ctx, &entity.PurchaseOrder{}).Where("id = ?", id).Updates(map[string]interface{}{
		"delivered_qty":     p.DeliveredQty,
		"remaining_qty":     p.RemainingQty,
		"delivered_value":   p.DeliveredValue,
		"delivery_progress": string(p.DeliveryProgress),
		"updated_at":        time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update order progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOpen 统计未完成交付的订单
func (r *OrderRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.table(ctx, &entity.PurchaseOrder{}).
		Where("delivery_progress <> ?", string(entity.DeliveryProgressCompleted)).
		Count(&n).Error
	return n, err
}
