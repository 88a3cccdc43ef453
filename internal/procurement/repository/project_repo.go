package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"gorm.io/gorm/clause"
)

// ProjectRepository 项目仓库
type ProjectRepository struct {
	*scope
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, p *entity.Project) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CompanyID = r.companyID
	return r.db.WithContext(ctx).Create(p).Error
}

// FindByID 根据ID查找项目
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	if err := r.table(ctx, &entity.Project{}).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindForUpdate 查找并锁定项目行
func (r *ProjectRepository) FindForUpdate(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	query := r.table(ctx, &entity.Project{}).Where("id = ?", id)
	if r.lockRows {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListIDs 返回公司全部项目ID
func (r *ProjectRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.table(ctx, &entity.Project{}).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// UpdateActuals 回写项目实际成本与偏差
func (r *ProjectRepository) UpdateActuals(ctx context.Context, id string, actualCost, variance float64) error {
	res := r.table(ctx, &entity.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"actual_cost": actualCost,
		"variance":    variance,
		"updated_at":  time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update project actuals: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectTotals 公司项目汇总
type ProjectTotals struct {
	Count      int64
	Budget     float64
	ActualCost float64
	Variance   float64
}

// Totals 汇总公司全部项目预算与实际
func (r *ProjectRepository) Totals(ctx context.Context) (ProjectTotals, error) {
	var t ProjectTotals
	err := r.table(ctx, &entity.Project{}).
		Select("COUNT(*) AS count, COALESCE(SUM(budget), 0) AS budget, COALESCE(SUM(actual_cost), 0) AS actual_cost, COALESCE(SUM(variance), 0) AS variance").
		Scan(&t).Error
	return t, err
}
