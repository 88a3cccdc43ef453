package service

import (
	"context"
	"errors"
)

var (
	ErrInvalidTransition  = errors.New("invalid delivery status transition")
	ErrDeliveryLocked     = errors.New("delivered records are locked and cannot be modified")
	ErrNoChanges          = errors.New("no fields to update")
	ErrInvalidStatus      = errors.New("unknown delivery status")
	ErrInvalidReference   = errors.New("linked order or project does not exist")
	ErrExpenseNotPending  = errors.New("expense has already been decided")
	ErrStorageUnavailable = errors.New("object storage is not configured")
)

// Broadcaster pushes change notifications to realtime subscribers.
// Implemented by sse.Hub (single instance) and sse.Relay (Redis fan-out).
type Broadcaster interface {
	Broadcast(companyID, channel, event string, payload interface{})
	BroadcastDashboardUpdated(companyID string)
}

// Auditor records a structured history entry for an entity.
type Auditor interface {
	Record(ctx context.Context, companyID, userID, entityType, entityID, action string, metadata map[string]interface{}) error
}

// 审计实体类型
const (
	EntityDelivery = "delivery"
	EntityOrder    = "order"
	EntityProject  = "project"
	EntityExpense  = "expense"
)
