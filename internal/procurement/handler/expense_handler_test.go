package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/12313131dBossza/siteproc-sub003/internal/middleware"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/testutil"
)

func TestExpenseLifecycle(t *testing.T) {
	router, _, _ := setupProcurementTest(t)

	w := testutil.DoRequest(router, "POST", "/api/v1/expenses", map[string]interface{}{
		"project_id": "prj-1",
		"amount":     80000,
		"vendor":     "Concrete Co",
	}, tokenFor(middleware.RoleForeman))
	if w.Code != http.StatusCreated {
		t.Fatalf("create expense: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	result := dataOf(t, testutil.ParseResponse(w))
	expense := result["expense"].(map[string]interface{})
	if expense["category"] != "general" || expense["status"] != "pending" {
		t.Errorf("unexpected defaults: %v", expense)
	}
	if result["project"].(map[string]interface{})["status"] != "ok" {
		t.Errorf("expected project outcome ok, got %v", result["project"])
	}

	path := "/api/v1/expenses/" + expense["id"].(string)
	w = testutil.DoRequest(router, "POST", path+"/approve", nil, tokenFor(middleware.RoleEditor))
	if w.Code != http.StatusForbidden {
		t.Fatalf("editor approve: expected 403, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", path+"/approve", nil, tokenFor(middleware.RoleManager))
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", path+"/reject", nil, tokenFor(middleware.RoleManager))
	if w.Code != http.StatusConflict {
		t.Fatalf("reject after approve: expected 409, got %d", w.Code)
	}
	if code := testutil.ParseResponse(w)["code"]; code != float64(CodeExpenseNotPending) {
		t.Errorf("expected code %d, got %v", CodeExpenseNotPending, code)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/projects/prj-1/actuals", nil, tokenFor(middleware.RoleViewer))
	actuals := dataOf(t, testutil.ParseResponse(w))
	if actuals["actual_cost"] != 80000.0 || actuals["usage_percent"] != 80.0 {
		t.Errorf("expected actual 80000 at 80%%, got %v / %v", actuals["actual_cost"], actuals["usage_percent"])
	}

	// 80% 触发预算预警
	w = testutil.DoRequest(router, "GET", "/api/v1/notifications", nil, tokenFor(middleware.RoleViewer))
	list := dataOf(t, testutil.ParseResponse(w))
	if notifications := list["items"].([]interface{}); len(notifications) != 1 {
		t.Fatalf("expected one budget alert, got %v", list)
	}
	if total := list["pagination"].(map[string]interface{})["total"]; total != 1.0 {
		t.Errorf("expected total 1, got %v", total)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	router, _, _ := setupProcurementTest(t)
	token := tokenFor(middleware.RoleForeman)

	w := testutil.DoRequest(router, "POST", "/api/v1/expenses", map[string]interface{}{"project_id": "prj-1", "amount": -5}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/expenses", map[string]interface{}{"project_id": "prj-404", "amount": 5}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown project: expected 400, got %d", w.Code)
	}
}

func TestActivityRecordsReconciliation(t *testing.T) {
	router, _, _ := setupProcurementTest(t)
	createDelivery(t, router, tokenFor(middleware.RoleForeman), map[string]interface{}{
		"order_id": "po-1",
		"status":   "delivered",
		"items":    []map[string]interface{}{{"quantity": 50, "unit_price": 10}},
	})

	w := testutil.DoRequest(router, "GET", "/api/v1/activity?entity_type=order&entity_id=po-1", nil, tokenFor(middleware.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("activity: expected 200, got %d", w.Code)
	}
	items := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected one order audit entry, got %d", len(items))
	}
	if action := items[0].(map[string]interface{})["action"]; action != "delivery_progress_updated" {
		t.Errorf("unexpected action %v", action)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/activity?entity_type=project&entity_id=prj-1", nil, tokenFor(middleware.RoleViewer))
	items = dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["action"] != "actuals_auto_updated" {
		t.Errorf("expected actuals_auto_updated entry, got %v", items)
	}
}

func TestManualReconcileEndpoints(t *testing.T) {
	router, _, _ := setupProcurementTest(t)
	manager := tokenFor(middleware.RoleManager)

	w := testutil.DoRequest(router, "POST", "/api/v1/projects/prj-1/reconcile", nil, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile project: expected 200, got %d", w.Code)
	}
	if data := dataOf(t, testutil.ParseResponse(w)); data["status"] != "skipped" {
		t.Errorf("expected skipped for untouched project, got %v", data)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/orders/po-404/reconcile", nil, manager)
	if w.Code != http.StatusNotFound {
		t.Fatalf("reconcile missing order: expected 404, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/reconcile", nil, manager)
	if w.Code != http.StatusForbidden {
		t.Fatalf("sweep as manager: expected 403, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/reconcile", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("sweep as admin: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDashboardSummary(t *testing.T) {
	router, _, _ := setupProcurementTest(t)
	createDelivery(t, router, tokenFor(middleware.RoleForeman), map[string]interface{}{
		"project_id": "prj-1",
		"status":     "delivered",
		"items":      []map[string]interface{}{{"quantity": 1, "unit_price": 25000}},
	})

	w := testutil.DoRequest(router, "GET", "/api/v1/dashboard/summary", nil, tokenFor(middleware.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", w.Code)
	}
	summary := dataOf(t, testutil.ParseResponse(w))
	if summary["projects"] != 1.0 || summary["total_actual_cost"] != 25000.0 {
		t.Errorf("unexpected summary %v", summary)
	}
	if summary["budget_used_percent"] != 25.0 {
		t.Errorf("expected 25%% used, got %v", summary["budget_used_percent"])
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	router, _, _ := setupProcurementTest(t)

	for _, path := range []string{"/api/v1/deliveries", "/api/v1/expenses", "/api/v1/dashboard/summary"} {
		w := testutil.DoRequest(router, "GET", path, nil, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestNotificationsArePaginated(t *testing.T) {
	router, db, _ := setupProcurementTest(t)
	for i := 0; i < 3; i++ {
		n := &entity.Notification{
			ID:        fmt.Sprintf("ntf-%d", i),
			CompanyID: company,
			Type:      "budget_alert",
			Title:     "Budget warning",
		}
		if err := db.Create(n).Error; err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}

	w := testutil.DoRequest(router, "GET", "/api/v1/notifications?page=2&page_size=2", nil, tokenFor(middleware.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", w.Code)
	}
	list := dataOf(t, testutil.ParseResponse(w))
	if items := list["items"].([]interface{}); len(items) != 1 {
		t.Errorf("expected 1 item on page 2, got %d", len(items))
	}
	pagination := list["pagination"].(map[string]interface{})
	if pagination["total"] != 3.0 || pagination["total_pages"] != 2.0 {
		t.Errorf("unexpected pagination %v", pagination)
	}
}
