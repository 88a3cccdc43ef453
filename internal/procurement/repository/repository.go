package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库入口。所有业务查询都必须经由 ForCompany 取得租户作用域。
type Repositories struct {
	db *gorm.DB
}

// NewRepositories 创建仓库入口
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{db: db}
}

// ForCompany binds every repository to one company. Queries issued through
// the returned Tenant always carry the company_id filter.
func (r *Repositories) ForCompany(companyID string) *Tenant {
	return newTenant(r.db, companyID)
}

// CompanyIDs 返回拥有订单或项目的全部公司，用于全量对账
func (r *Repositories) CompanyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT company_id FROM projects
		UNION
		SELECT company_id FROM purchase_orders
	`).Scan(&ids).Error
	return ids, err
}

// Tenant 租户作用域仓库集合
type Tenant struct {
	CompanyID string

	Delivery     *DeliveryRepository
	Order        *OrderRepository
	Project      *ProjectRepository
	Expense      *ExpenseRepository
	ActivityLog  *ActivityLogRepository
	Notification *NotificationRepository

	db *gorm.DB
}

func newTenant(db *gorm.DB, companyID string) *Tenant {
	s := &scope{db: db, companyID: companyID, lockRows: db.Dialector.Name() == "postgres"}
	return &Tenant{
		CompanyID:    companyID,
		Delivery:     &DeliveryRepository{s},
		Order:        &OrderRepository{s},
		Project:      &ProjectRepository{s},
		Expense:      &ExpenseRepository{s},
		ActivityLog:  &ActivityLogRepository{s},
		Notification: &NotificationRepository{s},
		db:           db,
	}
}

// Transaction runs fn with a Tenant bound to a single database transaction.
func (t *Tenant) Transaction(ctx context.Context, fn func(tx *Tenant) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newTenant(tx, t.CompanyID))
	})
}

// scope carries the bound company id shared by every repository of a Tenant.
type scope struct {
	db        *gorm.DB
	companyID string
	lockRows  bool
}

// table starts a company-scoped query on the given model's table.
func (s *scope) table(ctx context.Context, model interface{}) *gorm.DB {
	return s.db.WithContext(ctx).Model(model).Where("company_id = ?", s.companyID)
}

func newID() string {
	return uuid.New().String()[:32]
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
