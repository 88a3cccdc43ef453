package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ItemTotals 交付行项汇总
type ItemTotals struct {
	Count    int
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

type itemRow struct {
	Quantity   float64
	TotalPrice float64
}

func sumItems(rows []itemRow) ItemTotals {
	totals := ItemTotals{Count: len(rows), Quantity: decimal.Zero, Value: decimal.Zero}
	for _, r := range rows {
		totals.Quantity = totals.Quantity.Add(decimal.NewFromFloat(r.Quantity))
		totals.Value = totals.Value.Add(decimal.NewFromFloat(r.TotalPrice))
	}
	return totals
}

// DeliveryRepository 交付仓库
type DeliveryRepository struct {
	*scope
}

// Create 创建交付及行项
func (r *DeliveryRepository) Create(ctx context.Context, d *entity.Delivery) error {
	if d.ID == "" {
		d.ID = newID()
	}
	d.CompanyID = r.companyID
	for i := range d.Items {
		if d.Items[i].ID == "" {
			d.Items[i].ID = newID()
		}
		d.Items[i].CompanyID = r.companyID
		d.Items[i].DeliveryID = d.ID
	}
	return r.db.WithContext(ctx).Create(d).Error
}

// FindByID 根据ID查找交付（含已归档、含行项）
func (r *DeliveryRepository) FindByID(ctx context.Context, id string) (*entity.Delivery, error) {
	var d entity.Delivery
	err := r.table(ctx, &entity.Delivery{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&d).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// FindAll 查询未归档交付列表
func (r *DeliveryRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Delivery, int64, error) {
	var items []entity.Delivery
	var total int64

	query := r.table(ctx, &entity.Delivery{}).Where("is_archived = ?", false)

	if projectID := filters["project_id"]; projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if orderID := filters["order_id"]; orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Update 按字段更新交付
func (r *DeliveryRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.table(ctx, &entity.Delivery{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update delivery: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive 软删除交付
func (r *DeliveryRepository) Archive(ctx context.Context, id string) error {
	now := time.Now()
	return r.Update(ctx, id, map[string]interface{}{
		"is_archived": true,
		"archived_at": now,
	})
}

// ItemTotals 汇总单个交付的行项
func (r *DeliveryRepository) ItemTotals(ctx context.Context, deliveryID string) (ItemTotals, error) {
	var rows []itemRow
	err := r.db.WithContext(ctx).
		Model(&entity.DeliveryItem{}).
		Select("quantity, total_price").
		Where("company_id = ? AND delivery_id = ?", r.companyID, deliveryID).
		Scan(&rows).Error
	if err != nil {
		return ItemTotals{}, err
	}
	return sumItems(rows), nil
}

// OrderItemTotals 汇总引用该订单的全部未归档交付的行项
func (r *DeliveryRepository) OrderItemTotals(ctx context.Context, orderID string) (ItemTotals, error) {
	var rows []itemRow
	err := r.db.WithContext(ctx).
		Table("delivery_items").
		Select("delivery_items.quantity, delivery_items.total_price").
		Joins("JOIN deliveries ON deliveries.id = delivery_items.delivery_id").
		Where("deliveries.company_id = ? AND deliveries.order_id = ? AND deliveries.is_archived = ?",
			r.companyID, orderID, false).
		Scan(&rows).Error
	if err != nil {
		return ItemTotals{}, err
	}
	return sumItems(rows), nil
}

// ProjectDeliveredTotals 汇总项目下状态为 partial/delivered 的未归档交付行项
func (r *DeliveryRepository) ProjectDeliveredTotals(ctx context.Context, projectID string) (ItemTotals, error) {
	var rows []itemRow
	err := r.db.WithContext(ctx).
		Table("delivery_items").
		Select("delivery_items.quantity, delivery_items.total_price").
		Joins("JOIN deliveries ON deliveries.id = delivery_items.delivery_id").
		Where("deliveries.company_id = ? AND deliveries.project_id = ? AND deliveries.is_archived = ?",
			r.companyID, projectID, false).
		Where("deliveries.status IN ?", []string{string(entity.DeliveryStatusPartial), string(entity.DeliveryStatusDelivered)}).
		Scan(&rows).Error
	if err != nil {
		return ItemTotals{}, err
	}
	return sumItems(rows), nil
}

// FindBackorders 查询订单下未归档的欠交占位交付
func (r *DeliveryRepository) FindBackorders(ctx context.Context, orderID string) ([]entity.Delivery, error) {
	var items []entity.Delivery
	err := r.table(ctx, &entity.Delivery{}).
		Where("order_id = ? AND is_backorder = ? AND is_archived = ?", orderID, true, false).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// CountByStatus 统计未归档交付数量
func (r *DeliveryRepository) CountByStatus(ctx context.Context, status entity.DeliveryStatus) (int64, error) {
	var n int64
	err := r.table(ctx, &entity.Delivery{}).
		Where("status = ? AND is_archived = ?", status, false).
		Count(&n).Error
	return n, err
}
