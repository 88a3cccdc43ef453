package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/middleware"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/entity"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret     = "siteproc-test-jwt-secret"
	TestCompanyID = "company-test-001"
	TestUserID    = "test-user-001"
)

// SetupTestDB opens an isolated in-memory SQLite database with every table
// migrated. Each test gets its own database, dropped when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// 单连接：内存库随最后一个连接关闭而销毁，也避免共享缓存的表锁
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, companyID string, role middleware.Role) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        userID,
		"uid":        userID,
		"company_id": companyID,
		"role":       string(role),
		"name":       "Test " + string(role),
		"iss":        "siteproc",
		"iat":        now.Unix(),
		"exp":        now.Add(24 * time.Hour).Unix(),
		"jti":        fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for the default admin test user
func DefaultTestToken() string {
	return GenerateTestToken(TestUserID, TestCompanyID, middleware.RoleAdmin)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedProject creates a project with the given budget
func SeedProject(t *testing.T, db *gorm.DB, companyID, id string, budget float64) *entity.Project {
	t.Helper()
	p := &entity.Project{
		ID:        id,
		CompanyID: companyID,
		Name:      "Project " + id,
		Status:    "active",
		Budget:    budget,
		Variance:  budget,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	return p
}

// SeedOrder creates an approved purchase order, optionally linked to a project
func SeedOrder(t *testing.T, db *gorm.DB, companyID, id string, projectID *string, orderedQty float64) *entity.PurchaseOrder {
	t.Helper()
	o := &entity.PurchaseOrder{
		ID:               id,
		CompanyID:        companyID,
		ProjectID:        projectID,
		OrderNumber:      "PO-" + id,
		Status:           "approved",
		OrderedQty:       orderedQty,
		RemainingQty:     orderedQty,
		DeliveryProgress: entity.DeliveryProgressNotStarted,
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	return o
}

// SeedDelivery creates a delivery with one item of the given quantity and total price
func SeedDelivery(t *testing.T, db *gorm.DB, companyID string, orderID, projectID *string, status entity.DeliveryStatus, qty, total float64) *entity.Delivery {
	t.Helper()
	id := uuid.New().String()[:32]
	d := &entity.Delivery{
		ID:        id,
		CompanyID: companyID,
		OrderID:   orderID,
		ProjectID: projectID,
		Status:    status,
		Items: []entity.DeliveryItem{{
			ID:         uuid.New().String()[:32],
			CompanyID:  companyID,
			DeliveryID: id,
			Quantity:   qty,
			Unit:       "pcs",
			UnitPrice:  unitPrice(qty, total),
			TotalPrice: total,
		}},
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("Failed to seed delivery: %v", err)
	}
	return d
}

// SeedExpense creates an expense against a project
func SeedExpense(t *testing.T, db *gorm.DB, companyID, projectID string, amount float64, status string) *entity.Expense {
	t.Helper()
	e := &entity.Expense{
		ID:        uuid.New().String()[:32],
		CompanyID: companyID,
		ProjectID: projectID,
		Category:  "general",
		Amount:    amount,
		Status:    status,
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("Failed to seed expense: %v", err)
	}
	return e
}

// Ptr returns a pointer to s
func Ptr(s string) *string {
	return &s
}

func unitPrice(qty, total float64) float64 {
	if qty == 0 {
		return 0
	}
	return total / qty
}
