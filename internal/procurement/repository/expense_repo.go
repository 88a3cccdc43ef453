package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/shopspring/decimal"
)

// ExpenseRepository 费用仓库
type ExpenseRepository struct {
	*scope
}

// Create 创建费用
func (r *ExpenseRepository) Create(ctx context.Context, e *entity.Expense) error {
	if e.ID == "" {
		e.ID = newID()
	}
	e.CompanyID = r.companyID
	return r.db.WithContext(ctx).Create(e).Error
}

// FindByID 根据ID查找费用
func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*entity.Expense, error) {
	var e entity.Expense
	if err := r.table(ctx, &entity.Expense{}).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindAll 查询费用列表
func (r *ExpenseRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Expense, int64, error) {
	var items []entity.Expense
	var total int64

	query := r.table(ctx, &entity.Expense{})
	if projectID := filters["project_id"]; projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
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

// UpdateStatus 更新审批状态
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id, status, approverID string) error {
	now := time.Now()
	fields := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	// 驳回不记审批人
	if status == entity.ExpenseStatusApproved {
		fields["approved_by"] = approverID
		fields["approved_at"] = now
	}
	res := r.table(ctx, &entity.Expense{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update expense status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SumForProject 汇总项目费用；statuses 为空时统计全部状态
func (r *ExpenseRepository) SumForProject(ctx context.Context, projectID string, statuses []string) (decimal.Decimal, error) {
	var amounts []float64
	query := r.table(ctx, &entity.Expense{}).Where("project_id = ?", projectID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	return sum, nil
}
