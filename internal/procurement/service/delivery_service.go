package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProofStore stores proof-of-delivery files and returns their URL.
type ProofStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// DeliveryService 交付服务
type DeliveryService struct {
	repos      *repository.Repositories
	reconciler *Reconciler
	auditor    Auditor
	bus        Broadcaster
	store      ProofStore
	logger     *zap.Logger
}

func NewDeliveryService(repos *repository.Repositories, reconciler *Reconciler, auditor Auditor, bus Broadcaster, store ProofStore, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		repos:      repos,
		reconciler: reconciler,
		auditor:    auditor,
		bus:        bus,
		store:      store,
		logger:     logger,
	}
}

// CreateDeliveryItemRequest 交付行项
type CreateDeliveryItemRequest struct {
	ProductID   *string  `json:"product_id"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity" binding:"gt=0"`
	Unit        string   `json:"unit"`
	UnitPrice   float64  `json:"unit_price" binding:"gte=0"`
	TotalPrice  *float64 `json:"total_price" binding:"omitempty,gte=0"`
}

// CreateDeliveryRequest 创建交付请求
type CreateDeliveryRequest struct {
	OrderID       *string                     `json:"order_id"`
	ProjectID     *string                     `json:"project_id"`
	Status        entity.DeliveryStatus       `json:"status"`
	DriverName    string                      `json:"driver_name"`
	VehicleNumber string                      `json:"vehicle_number"`
	SignerName    string                      `json:"signer_name"`
	SignatureURL  string                      `json:"signature_url"`
	Notes         string                      `json:"notes"`
	Items         []CreateDeliveryItemRequest `json:"items" binding:"dive"`
}

// UpdateDeliveryRequest 更新交付请求；nil 字段不修改
type UpdateDeliveryRequest struct {
	Status        *entity.DeliveryStatus `json:"status"`
	DriverName    *string                `json:"driver_name"`
	VehicleNumber *string                `json:"vehicle_number"`
	SignerName    *string                `json:"signer_name"`
	SignatureURL  *string                `json:"signature_url"`
	Notes         *string                `json:"notes"`
}

// Create persists a delivery with its items, then reconciles the linked
// order and project and maintains the order's backorder placeholder.
func (s *DeliveryService) Create(ctx context.Context, companyID, userID string, req *CreateDeliveryRequest) (*entity.Delivery, Report, error) {
	tenant := s.repos.ForCompany(companyID)

	status := req.Status
	if status == "" {
		status = entity.DeliveryStatusPending
	}
	if !status.Valid() {
		return nil, Report{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	orderID, projectID := nonEmpty(req.OrderID), nonEmpty(req.ProjectID)
	if orderID != nil {
		order, err := tenant.Order.FindByID(ctx, *orderID)
		if err != nil {
			return nil, Report{}, referenceError(err)
		}
		// 未指定项目时继承订单所属项目
		if projectID == nil {
			projectID = nonEmpty(order.ProjectID)
		}
	}
	if projectID != nil {
		if _, err := tenant.Project.FindByID(ctx, *projectID); err != nil {
			return nil, Report{}, referenceError(err)
		}
	}

	delivery := &entity.Delivery{
		OrderID:       orderID,
		ProjectID:     projectID,
		Status:        status,
		DriverName:    req.DriverName,
		VehicleNumber: req.VehicleNumber,
		SignerName:    req.SignerName,
		SignatureURL:  req.SignatureURL,
		Notes:         req.Notes,
		CreatedBy:     userID,
	}
	if status == entity.DeliveryStatusDelivered {
		now := time.Now()
		delivery.DeliveredAt = &now
	}
	for _, item := range req.Items {
		delivery.Items = append(delivery.Items, newDeliveryItem(item))
	}

	if err := tenant.Delivery.Create(ctx, delivery); err != nil {
		return nil, Report{}, fmt.Errorf("create delivery: %w", err)
	}

	s.record(ctx, companyID, userID, delivery.ID, "create", map[string]interface{}{
		"status":     string(delivery.Status),
		"order_id":   delivery.OrderID,
		"project_id": delivery.ProjectID,
		"item_count": len(delivery.Items),
	})
	s.bus.Broadcast(companyID, sse.DeliveryChannel(delivery.ID), "created", delivery)
	s.bus.BroadcastDashboardUpdated(companyID)

	report := s.reconciler.Reconcile(ctx, companyID, delivery.ID, userID)
	if orderID != nil {
		s.syncBackorder(ctx, companyID, *orderID, userID)
	}

	return delivery, report, nil
}

// Get 获取交付详情
func (s *DeliveryService) Get(ctx context.Context, companyID, id string) (*entity.Delivery, error) {
	return s.repos.ForCompany(companyID).Delivery.FindByID(ctx, id)
}

// List 查询交付列表
func (s *DeliveryService) List(ctx context.Context, companyID string, page, pageSize int, filters map[string]string) ([]entity.Delivery, int64, error) {
	return s.repos.ForCompany(companyID).Delivery.FindAll(ctx, page, pageSize, filters)
}

// Update applies a status change and field edits. Only admins may change
// the status of a delivered record, and status changes must follow the
// forward-only transition graph.
func (s *DeliveryService) Update(ctx context.Context, companyID, userID string, isAdmin bool, id string, req *UpdateDeliveryRequest) (*entity.Delivery, Report, error) {
	tenant := s.repos.ForCompany(companyID)

	current, err := tenant.Delivery.FindByID(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}
	if current.IsArchived {
		return nil, Report{}, repository.ErrNotFound
	}

	fields := make(map[string]interface{})
	changes := make(map[string]interface{})
	set := func(column string, old, value interface{}) {
		fields[column] = value
		changes[column] = map[string]interface{}{"from": old, "to": value}
	}

	statusChanged := req.Status != nil && *req.Status != current.Status
	if req.Status != nil && !req.Status.Valid() {
		return nil, Report{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
	}
	if statusChanged {
		set("status", string(current.Status), string(*req.Status))
		if *req.Status == entity.DeliveryStatusDelivered {
			fields["delivered_at"] = time.Now()
		}
	}
	setString := func(column string, old string, value *string) {
		if value != nil && *value != old {
			set(column, old, *value)
		}
	}
	setString("driver_name", current.DriverName, req.DriverName)
	setString("vehicle_number", current.VehicleNumber, req.VehicleNumber)
	setString("signer_name", current.SignerName, req.SignerName)
	setString("signature_url", current.SignatureURL, req.SignatureURL)
	setString("notes", current.Notes, req.Notes)

	if len(fields) == 0 {
		return nil, Report{}, ErrNoChanges
	}
	// 已送达记录只锁状态，签收信息仍可补录
	if statusChanged && current.Status == entity.DeliveryStatusDelivered && !isAdmin {
		return nil, Report{}, ErrDeliveryLocked
	}
	if statusChanged && !entity.IsValidTransition(current.Status, *req.Status) {
		return nil, Report{}, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, current.Status, *req.Status)
	}

	if err := tenant.Delivery.Update(ctx, id, fields); err != nil {
		return nil, Report{}, err
	}

	report := Report{DeliveryID: id, Delivery: skipped("status unchanged"), Order: skipped("status unchanged"), Project: skipped("status unchanged")}
	if statusChanged {
		report = s.reconciler.Reconcile(ctx, companyID, id, userID)
	}

	s.record(ctx, companyID, userID, id, "updated", map[string]interface{}{"changes": changes})

	updated, err := tenant.Delivery.FindByID(ctx, id)
	if err != nil {
		return nil, report, err
	}
	s.bus.Broadcast(companyID, sse.DeliveryChannel(id), "updated", updated)
	s.bus.BroadcastDashboardUpdated(companyID)
	return updated, report, nil
}

// Archive soft-deletes a delivery and reconciles so that the order and
// project aggregates drop its items.
func (s *DeliveryService) Archive(ctx context.Context, companyID, userID, id string) (Report, error) {
	tenant := s.repos.ForCompany(companyID)

	current, err := tenant.Delivery.FindByID(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if current.IsArchived {
		return Report{}, repository.ErrNotFound
	}
	if err := tenant.Delivery.Archive(ctx, id); err != nil {
		return Report{}, err
	}

	report := s.reconciler.Reconcile(ctx, companyID, id, userID)
	if current.OrderID != nil {
		s.syncBackorder(ctx, companyID, *current.OrderID, userID)
	}

	s.record(ctx, companyID, userID, id, "archived", map[string]interface{}{
		"previous_status": string(current.Status),
		"order_id":        current.OrderID,
		"project_id":      current.ProjectID,
	})
	s.bus.Broadcast(companyID, sse.DeliveryChannel(id), "archived", map[string]string{"id": id})
	s.bus.BroadcastDashboardUpdated(companyID)
	return report, nil
}

// AttachProof uploads a proof-of-delivery file and stores its URL on the delivery.
func (s *DeliveryService) AttachProof(ctx context.Context, companyID, userID, id string, r io.Reader, size int64, filename, contentType string) (*entity.Delivery, error) {
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}
	tenant := s.repos.ForCompany(companyID)

	current, err := tenant.Delivery.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsArchived {
		return nil, repository.ErrNotFound
	}

	objectName := fmt.Sprintf("deliveries/%s/%s/%s%s", companyID, id, uuid.New().String()[:8], strings.ToLower(filepath.Ext(filename)))
	url, err := s.store.Put(ctx, objectName, r, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload proof: %w", err)
	}
	if err := tenant.Delivery.Update(ctx, id, map[string]interface{}{"proof_url": url}); err != nil {
		return nil, err
	}

	s.record(ctx, companyID, userID, id, "proof_uploaded", map[string]interface{}{
		"file_name": filename,
		"size":      size,
		"url":       url,
	})
	current.ProofURL = url
	s.bus.Broadcast(companyID, sse.DeliveryChannel(id), "updated", current)
	return current, nil
}

// syncBackorder keeps exactly one open backorder placeholder while an order
// is short, and closes open placeholders once it is fully delivered.
func (s *DeliveryService) syncBackorder(ctx context.Context, companyID, orderID, userID string) {
	tenant := s.repos.ForCompany(companyID)
	log := s.logger.With(zap.String("company_id", companyID), zap.String("order_id", orderID))

	order, err := tenant.Order.FindByID(ctx, orderID)
	if err != nil {
		log.Warn("Backorder check skipped: order lookup failed", zap.Error(err))
		return
	}
	ordered := decimal.NewFromFloat(order.EffectiveOrderedQty())
	if !ordered.IsPositive() {
		return
	}
	totals, err := tenant.Delivery.OrderItemTotals(ctx, orderID)
	if err != nil {
		log.Warn("Backorder check skipped: failed to sum items", zap.Error(err))
		return
	}
	backorders, err := tenant.Delivery.FindBackorders(ctx, orderID)
	if err != nil {
		log.Warn("Backorder check skipped: failed to load backorders", zap.Error(err))
		return
	}

	var open []entity.Delivery
	for _, b := range backorders {
		if b.Status != entity.DeliveryStatusDelivered {
			open = append(open, b)
		}
	}

	if totals.Quantity.GreaterThanOrEqual(ordered) {
		closed := 0
		for _, b := range open {
			err := tenant.Delivery.Update(ctx, b.ID, map[string]interface{}{
				"status":       string(entity.DeliveryStatusDelivered),
				"delivered_at": time.Now(),
			})
			if err != nil {
				log.Warn("Failed to close backorder", zap.String("delivery_id", b.ID), zap.Error(err))
				continue
			}
			s.record(ctx, companyID, userID, b.ID, "backorder_fulfilled", map[string]interface{}{"order_id": orderID})
			s.bus.Broadcast(companyID, sse.DeliveryChannel(b.ID), "updated", map[string]string{"id": b.ID, "status": string(entity.DeliveryStatusDelivered)})
			closed++
		}
		if closed > 0 {
			s.bus.BroadcastDashboardUpdated(companyID)
		}
		return
	}

	remaining := ordered.Sub(totals.Quantity)
	note := BackorderNote(remaining)
	if len(open) > 0 {
		if open[0].Notes != note {
			if err := tenant.Delivery.Update(ctx, open[0].ID, map[string]interface{}{"notes": note}); err != nil {
				log.Warn("Failed to refresh backorder note", zap.String("delivery_id", open[0].ID), zap.Error(err))
			}
		}
		return
	}

	backorder := &entity.Delivery{
		OrderID:     &orderID,
		ProjectID:   nonEmpty(order.ProjectID),
		Status:      entity.DeliveryStatusPending,
		Notes:       note,
		IsBackorder: true,
		CreatedBy:   userID,
	}
	if err := tenant.Delivery.Create(ctx, backorder); err != nil {
		log.Warn("Failed to create backorder", zap.Error(err))
		return
	}
	s.record(ctx, companyID, userID, backorder.ID, "backorder_create", map[string]interface{}{
		"order_id":      orderID,
		"remaining_qty": remaining.InexactFloat64(),
	})
	s.bus.Broadcast(companyID, sse.DeliveryChannel(backorder.ID), "created", backorder)
	s.bus.BroadcastDashboardUpdated(companyID)
	log.Info("Backorder created", zap.String("delivery_id", backorder.ID), zap.String("remaining", remaining.String()))
}

// BackorderNote 欠交备注
func BackorderNote(remaining decimal.Decimal) string {
	return "Backorder remaining " + remaining.String()
}

func (s *DeliveryService) record(ctx context.Context, companyID, userID, deliveryID, action string, metadata map[string]interface{}) {
	if err := s.auditor.Record(ctx, companyID, userID, EntityDelivery, deliveryID, action, metadata); err != nil {
		s.logger.Warn("Failed to record delivery audit entry",
			zap.String("delivery_id", deliveryID), zap.String("action", action), zap.Error(err))
	}
}

func newDeliveryItem(req CreateDeliveryItemRequest) entity.DeliveryItem {
	total := decimal.NewFromFloat(req.Quantity).Mul(decimal.NewFromFloat(req.UnitPrice)).Round(2)
	if req.TotalPrice != nil {
		total = decimal.NewFromFloat(*req.TotalPrice)
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}
	return entity.DeliveryItem{
		ProductID:   nonEmpty(req.ProductID),
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        unit,
		UnitPrice:   req.UnitPrice,
		TotalPrice:  total.InexactFloat64(),
	}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func referenceError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidReference
	}
	return err
}
