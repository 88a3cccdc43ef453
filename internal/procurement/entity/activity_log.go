package entity

import "time"

// ActivityLog 审计日志
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	CompanyID  string `json:"company_id" gorm:"size:32;not null;index"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_activity_entity"` // delivery/order/project/expense
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_activity_entity"`
	Action     string `json:"action" gorm:"size:50;not null"`
	Metadata   JSONB  `json:"metadata" gorm:"type:jsonb"`

	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

// Notification 站内通知
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string    `json:"company_id" gorm:"size:32;not null;index"`
	Type      string    `json:"type" gorm:"size:50;not null"`
	Title     string    `json:"title" gorm:"size:200"`
	Message   string    `json:"message" gorm:"type:text"`
	Link      string    `json:"link" gorm:"size:500"`
	Metadata  JSONB     `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// AllModels lists every table owned by this module, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Project{},
		&PurchaseOrder{},
		&Delivery{},
		&DeliveryItem{},
		&Expense{},
		&ActivityLog{},
		&Notification{},
	}
}
