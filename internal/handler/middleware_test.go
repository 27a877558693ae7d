package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
	"github.com/banksync/backend/internal/service"
)

type staticValidator struct {
	result *model.TokenValidation
}

func (v *staticValidator) Validate(ctx context.Context, token string) (*model.TokenValidation, error) {
	return v.result, nil
}

func newGuardedRouter(t *testing.T, maxRequests string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	guard, err := service.NewAuthGuard(
		config.RateLimitConfig{MaxRequests: maxRequests, WindowMs: "60000"},
		&staticValidator{result: &model.TokenValidation{Valid: true, UserID: "7"}},
	)
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	r := gin.New()
	r.GET("/protected", BankSyncGuard(guard), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetAuthUserID(c)})
	})
	return r
}

func TestBankSyncGuardMissingToken(t *testing.T) {
	r := newGuardedRouter(t, "10")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestBankSyncGuardAllowsBearerToken(t *testing.T) {
	r := newGuardedRouter(t, "10")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBankSyncGuardRateLimited(t *testing.T) {
	r := newGuardedRouter(t, "1")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on rate limit")
	}
}
