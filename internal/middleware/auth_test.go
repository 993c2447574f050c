package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/pkg/auth"
	"github.com/threadview/threadview/pkg/auth/static"
	"github.com/threadview/threadview/pkg/config"
)

func newAuthedRouter(t *testing.T, cfg *config.Config, validator auth.Validator, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(validator, cfg)}
	handlers = append(handlers, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := GetClaims(c)
		role := c.GetString("userRole")
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject, "role": role})
	})
	r.GET("/probe", handlers...)
	return r
}

func staticValidator(t *testing.T, cfg string) auth.Validator {
	t.Helper()
	v, err := static.NewValidatorFromJSON(json.RawMessage(cfg))
	if err != nil {
		t.Fatalf("static validator: %v", err)
	}
	return v
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	v := staticValidator(t, `{"token":"tok-1","subject":"agent-1"}`)
	r := newAuthedRouter(t, &config.Config{Env: "prod"}, v)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["subject"] != "agent-1" {
		t.Errorf("expected subject agent-1, got %s", body["subject"])
	}
	if body["role"] != "USER" {
		t.Errorf("expected default role USER, got %s", body["role"])
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	v := staticValidator(t, `{"token":"tok-1"}`)
	r := newAuthedRouter(t, &config.Config{Env: "prod"}, v)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	v := staticValidator(t, `{"token":"tok-1"}`)
	r := newAuthedRouter(t, &config.Config{Env: "prod"}, v)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_NilValidator(t *testing.T) {
	r := newAuthedRouter(t, &config.Config{Env: "prod"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestAuthMiddleware_DevRoleHeader(t *testing.T) {
	v := staticValidator(t, `{"token":"tok-1"}`)
	r := newAuthedRouter(t, &config.Config{Env: "dev"}, v)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("X-Role", "admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["role"] != "ADMIN" {
		t.Errorf("expected role ADMIN from dev header, got %s", body["role"])
	}
}

func TestRequireScope(t *testing.T) {
	cfg := &config.Config{Env: "prod"}

	scoped := staticValidator(t, `{"token":"tok-1","scopes":["threads:read"]}`)
	r := newAuthedRouter(t, cfg, scoped, RequireScope("threads:resume"))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing scope, got %d", w.Code)
	}

	r = newAuthedRouter(t, cfg, scoped, RequireScope("threads:read"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for present scope, got %d", w.Code)
	}

	// Unscoped tokens pass any scope check.
	unscoped := staticValidator(t, `{"token":"tok-1"}`)
	r = newAuthedRouter(t, cfg, unscoped, RequireScope("threads:resume"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unscoped token, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	v := staticValidator(t, `{"token":"tok-1","raw":{"role":"ADMIN"}}`)
	r := newAuthedRouter(t, &config.Config{Env: "prod"}, v, RequireAdmin())

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}

	v = staticValidator(t, `{"token":"tok-1"}`)
	r = newAuthedRouter(t, &config.Config{Env: "prod"}, v, RequireAdmin())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin, got %d", w.Code)
	}
}
