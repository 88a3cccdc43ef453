package entity

import "time"

// DeliveryStatus 交付状态
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusPartial   DeliveryStatus = "partial"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// Valid reports whether s is one of the known delivery statuses.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusPartial, DeliveryStatusDelivered:
		return true
	}
	return false
}

// CountsTowardActuals reports whether items of a delivery in this status are
// part of a project's actual cost.
func (s DeliveryStatus) CountsTowardActuals() bool {
	return s == DeliveryStatusPartial || s == DeliveryStatusDelivered
}

// IsValidTransition reports whether a delivery may move from one status to
// another. Only forward edges are allowed; delivered is terminal and a status
// never transitions to itself.
func IsValidTransition(from, to DeliveryStatus) bool {
	switch from {
	case DeliveryStatusPending:
		return to == DeliveryStatusPartial || to == DeliveryStatusDelivered
	case DeliveryStatusPartial:
		return to == DeliveryStatusDelivered
	}
	return false
}

// Delivery 交付记录
type Delivery struct {
	ID        string         `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string         `json:"company_id" gorm:"size:32;not null;index"`
	OrderID   *string        `json:"order_id" gorm:"size:32;index"`
	ProjectID *string        `json:"project_id" gorm:"size:32;index"`
	Status    DeliveryStatus `json:"status" gorm:"size:20;not null;default:pending"`

	// 签收
	DriverName    string     `json:"driver_name" gorm:"size:100"`
	VehicleNumber string     `json:"vehicle_number" gorm:"size:50"`
	SignerName    string     `json:"signer_name" gorm:"size:100"`
	SignatureURL  string     `json:"signature_url" gorm:"size:500"`
	ProofURL      string     `json:"proof_url" gorm:"size:500"`
	DeliveredAt   *time.Time `json:"delivered_at"`

	Notes       string `json:"notes" gorm:"type:text"`
	IsBackorder bool   `json:"is_backorder" gorm:"default:false"`

	// 软删除
	IsArchived bool       `json:"is_archived" gorm:"default:false;index"`
	ArchivedAt *time.Time `json:"archived_at"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []DeliveryItem `json:"items,omitempty" gorm:"foreignKey:DeliveryID"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

// DeliveryItem 交付行项
type DeliveryItem struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID   string    `json:"company_id" gorm:"size:32;not null;index"`
	DeliveryID  string    `json:"delivery_id" gorm:"size:32;not null;index"`
	ProductID   *string   `json:"product_id" gorm:"size:32"`
	Description string    `json:"description" gorm:"size:500"`
	Quantity    float64   `json:"quantity" gorm:"type:decimal(12,2);not null"`
	Unit        string    `json:"unit" gorm:"size:20;default:pcs"`
	UnitPrice   float64   `json:"unit_price" gorm:"type:decimal(12,4);default:0"`
	TotalPrice  float64   `json:"total_price" gorm:"type:decimal(15,2);default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

func (DeliveryItem) TableName() string {
	return "delivery_items"
}
