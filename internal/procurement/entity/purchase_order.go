package entity

import "time"

// PurchaseOrder 采购订单
type PurchaseOrder struct {
	ID          string  `json:"id" gorm:"primaryKey;size:32"`
	CompanyID   string  `json:"company_id" gorm:"size:32;not null;index"`
	ProjectID   *string `json:"project_id" gorm:"size:32;index"`
	OrderNumber string  `json:"order_number" gorm:"size:50"`
	Vendor      string  `json:"vendor" gorm:"size:200"`
	Status      string  `json:"status" gorm:"size:20;default:approved"`

	// 数量；quantity 为旧字段，ordered_qty 为空时回退使用
	OrderedQty float64 `json:"ordered_qty" gorm:"type:decimal(12,2);default:0"`
	Quantity   float64 `json:"quantity" gorm:"type:decimal(12,2);default:0"`
	Amount     float64 `json:"amount" gorm:"type:decimal(15,2);default:0"`

	// 交付聚合（由对账流程回写）
	DeliveredQty     float64          `json:"delivered_qty" gorm:"type:decimal(12,2);default:0"`
	RemainingQty     float64          `json:"remaining_qty" gorm:"type:decimal(12,2);default:0"`
	DeliveredValue   float64          `json:"delivered_value" gorm:"type:decimal(15,2);default:0"`
	DeliveryProgress DeliveryProgress `json:"delivery_progress" gorm:"size:30;default:not_started"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// EffectiveOrderedQty returns ordered_qty, falling back to the legacy quantity column.
func (o *PurchaseOrder) EffectiveOrderedQty() float64 {
	if o.OrderedQty > 0 {
		return o.OrderedQty
	}
	return o.Quantity
}

// DeliveryProgress 订单交付进度
type DeliveryProgress string

const (
	DeliveryProgressNotStarted         DeliveryProgress = "not_started"
	DeliveryProgressPartiallyDelivered DeliveryProgress = "partially_delivered"
	DeliveryProgressCompleted          DeliveryProgress = "completed"
)
