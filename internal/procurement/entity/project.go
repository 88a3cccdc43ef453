package entity

import "time"

// Project 工程项目
type Project struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string `json:"company_id" gorm:"size:32;not null;index"`
	Name      string `json:"name" gorm:"size:200;not null"`
	Status    string `json:"status" gorm:"size:20;default:active"`

	Budget     float64 `json:"budget" gorm:"type:decimal(15,2);default:0"`
	ActualCost float64 `json:"actual_cost" gorm:"type:decimal(15,2);default:0"`
	Variance   float64 `json:"variance" gorm:"type:decimal(15,2);default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

// Expense 项目费用
type Expense struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	CompanyID   string     `json:"company_id" gorm:"size:32;not null;index"`
	ProjectID   string     `json:"project_id" gorm:"size:32;not null;index"`
	Vendor      string     `json:"vendor" gorm:"size:200"`
	Category    string     `json:"category" gorm:"size:50;default:general"`
	Description string     `json:"description" gorm:"type:text"`
	Amount      float64    `json:"amount" gorm:"type:decimal(15,2);not null"`
	Status      string     `json:"status" gorm:"size:20;default:pending"`
	ApprovedBy  *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CreatedBy   string     `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Expense) TableName() string {
	return "expenses"
}

// Expense状态
const (
	ExpenseStatusPending  = "pending"
	ExpenseStatusApproved = "approved"
	ExpenseStatusRejected = "rejected"
)
