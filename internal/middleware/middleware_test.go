package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "middleware-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(role Role) jwt.MapClaims {
	return jwt.MapClaims{
		"uid":        "user-1",
		"company_id": "company-1",
		"role":       string(role),
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
}

func newRouter(min Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secure", JWTAuth(testSecret), RequireRole(min), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":     c.GetString(CtxUserID),
			"company": c.GetString(CtxCompanyID),
			"role":    string(CurrentRole(c)),
		})
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleAdmin, RoleManager, true},
		{RoleManager, RoleManager, true},
		{RoleEditor, RoleManager, false},
		{RoleForeman, RoleForeman, true},
		{RoleViewer, RoleForeman, false},
		{Role("owner"), RoleViewer, false},
		{Role(""), RoleViewer, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestJWTAuth(t *testing.T) {
	r := newRouter(RoleViewer)

	if w := get(r, "/secure", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", w.Code)
	}
	if w := get(r, "/secure", "not-a-jwt"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", w.Code)
	}

	expired := validClaims(RoleAdmin)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	if w := get(r, "/secure", signToken(t, jwt.SigningMethodHS256, expired)); w.Code != http.StatusUnauthorized {
		t.Errorf("expired token: expected 401, got %d", w.Code)
	}

	if w := get(r, "/secure", signToken(t, jwt.SigningMethodHS512, validClaims(RoleAdmin))); w.Code != http.StatusUnauthorized {
		t.Errorf("HS512 token: expected 401, got %d", w.Code)
	}

	noCompany := validClaims(RoleAdmin)
	delete(noCompany, "company_id")
	if w := get(r, "/secure", signToken(t, jwt.SigningMethodHS256, noCompany)); w.Code != http.StatusUnauthorized {
		t.Errorf("token without company: expected 401, got %d", w.Code)
	}

	w := get(r, "/secure", signToken(t, jwt.SigningMethodHS256, validClaims(RoleForeman)))
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"company":"company-1","role":"foreman","uid":"user-1"}` {
		t.Errorf("unexpected context values: %s", body)
	}
}

func TestJWTAuthQueryToken(t *testing.T) {
	r := newRouter(RoleViewer)
	token := signToken(t, jwt.SigningMethodHS256, validClaims(RoleViewer))

	if w := get(r, "/secure?token="+token, ""); w.Code != http.StatusOK {
		t.Errorf("query token: expected 200, got %d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter(RoleManager)

	if w := get(r, "/secure", signToken(t, jwt.SigningMethodHS256, validClaims(RoleEditor))); w.Code != http.StatusForbidden {
		t.Errorf("editor: expected 403, got %d", w.Code)
	}
	if w := get(r, "/secure", signToken(t, jwt.SigningMethodHS256, validClaims(RoleAdmin))); w.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", w.Code)
	}
}
