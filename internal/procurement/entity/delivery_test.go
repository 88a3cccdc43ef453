package entity

import "testing"

func TestIsValidTransition(t *testing.T) {
	statuses := []DeliveryStatus{DeliveryStatusPending, DeliveryStatusPartial, DeliveryStatusDelivered}
	allowed := map[[2]DeliveryStatus]bool{
		{DeliveryStatusPending, DeliveryStatusPartial}:   true,
		{DeliveryStatusPending, DeliveryStatusDelivered}: true,
		{DeliveryStatusPartial, DeliveryStatusDelivered}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]DeliveryStatus{from, to}]
			if got := IsValidTransition(from, to); got != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsValidTransitionUnknownStatus(t *testing.T) {
	if IsValidTransition("cancelled", DeliveryStatusDelivered) {
		t.Error("unknown source status must not transition")
	}
	if IsValidTransition(DeliveryStatusPending, "cancelled") {
		t.Error("unknown target status must not be reachable")
	}
}

func TestDeliveryStatusCountsTowardActuals(t *testing.T) {
	if DeliveryStatusPending.CountsTowardActuals() {
		t.Error("pending deliveries must not count toward actuals")
	}
	if !DeliveryStatusPartial.CountsTowardActuals() || !DeliveryStatusDelivered.CountsTowardActuals() {
		t.Error("partial and delivered deliveries must count toward actuals")
	}
}

func TestEffectiveOrderedQtyFallsBackToLegacyQuantity(t *testing.T) {
	o := &PurchaseOrder{Quantity: 12}
	if got := o.EffectiveOrderedQty(); got != 12 {
		t.Fatalf("expected legacy quantity 12, got %v", got)
	}
	o.OrderedQty = 30
	if got := o.EffectiveOrderedQty(); got != 30 {
		t.Fatalf("expected ordered_qty 30, got %v", got)
	}
}
