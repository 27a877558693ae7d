package service

import (
	"context"
	"errors"
	"testing"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
)

type fakeValidator struct {
	result *model.TokenValidation
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, token string) (*model.TokenValidation, error) {
	return f.result, f.err
}

func TestValidateBankSyncTokenMissing(t *testing.T) {
	result := ValidateBankSyncToken(context.Background(), "", &fakeValidator{})
	if result.Authenticated || result.Reason != model.DenyMissingToken {
		t.Fatalf("expected missing_token, got %+v", result)
	}
}

func TestValidateBankSyncTokenInvalidScheme(t *testing.T) {
	result := ValidateBankSyncToken(context.Background(), "Basic dXNlcjpwYXNz", &fakeValidator{})
	if result.Authenticated || result.Reason != model.DenyInvalidScheme {
		t.Fatalf("expected invalid_scheme, got %+v", result)
	}
}

func TestValidateBankSyncTokenExpired(t *testing.T) {
	validator := &fakeValidator{result: &model.TokenValidation{Valid: false, Error: model.DenyTokenExpired}}
	result := ValidateBankSyncToken(context.Background(), "Bearer expired-token", validator)
	if result.Authenticated || result.Reason != model.DenyTokenExpired {
		t.Fatalf("expected token_expired, got %+v", result)
	}
}

func TestValidateBankSyncTokenNilValidation(t *testing.T) {
	// validator가 계약을 어기고 (nil, nil)을 돌려줘도 게이트는 닫힌다
	result := ValidateBankSyncToken(context.Background(), "Bearer some-token", &fakeValidator{})
	if result.Authenticated || result.Reason != model.DenyInternalError {
		t.Fatalf("expected internal_error, got %+v", result)
	}
}

func TestValidateBankSyncTokenValidatorError(t *testing.T) {
	validator := &fakeValidator{err: errors.New("issuer unreachable")}
	result := ValidateBankSyncToken(context.Background(), "Bearer some-token", validator)
	if result.Authenticated || result.Reason != model.DenyInternalError {
		t.Fatalf("expected internal_error, got %+v", result)
	}
}

func TestValidateBankSyncTokenSuccess(t *testing.T) {
	validator := &fakeValidator{result: &model.TokenValidation{Valid: true, UserID: "42"}}
	result := ValidateBankSyncToken(context.Background(), "Bearer good-token", validator)
	if !result.Authenticated || result.UserID != "42" {
		t.Fatalf("expected authenticated user 42, got %+v", result)
	}
}

func TestCheckRateLimitRemaining(t *testing.T) {
	now := int64(1_000_000)
	// 윈도우 밖 1건 + 윈도우 안 2건, 한도 5
	requestLog := []int64{now - 120000, now - 30000, now - 15000}

	result := CheckRateLimit(requestLog, 5, 60000, now)
	if !result.Allowed {
		t.Fatalf("expected allowed, got %+v", result)
	}
	// remaining은 지금 평가 중인 요청의 슬롯까지 반영한다: 5 - 2 - 1
	if result.Remaining != 2 {
		t.Fatalf("expected remaining 2, got %d", result.Remaining)
	}
}

func TestCheckRateLimitAllEntriesOutsideWindow(t *testing.T) {
	now := int64(1_000_000)
	requestLog := make([]int64, 0, 100)
	for i := 0; i < 100; i++ {
		requestLog = append(requestLog, now-120000)
	}

	result := CheckRateLimit(requestLog, 100, 60000, now)
	if !result.Allowed {
		t.Fatalf("expected allowed, got %+v", result)
	}
	if result.Remaining != 99 {
		t.Fatalf("expected remaining 99, got %d", result.Remaining)
	}
}

func TestCheckRateLimitDenied(t *testing.T) {
	now := int64(1_000_000)
	requestLog := make([]int64, 0, 100)
	for i := int64(0); i < 100; i++ {
		requestLog = append(requestLog, now-50000+i)
	}

	result := CheckRateLimit(requestLog, 100, 60000, now)
	if result.Allowed {
		t.Fatalf("expected denied, got %+v", result)
	}
	if result.Remaining != 0 {
		t.Fatalf("expected remaining 0 on denial, got %d", result.Remaining)
	}
	// 가장 오래된 윈도우 내 엔트리(now-50000)가 빠질 때까지 대기
	if result.RetryAfterMs != 10000 {
		t.Fatalf("expected retryAfterMs 10000, got %d", result.RetryAfterMs)
	}
}

func TestCheckRateLimitBoundaryTimestampExcluded(t *testing.T) {
	now := int64(1_000_000)
	// 정확히 cutoff에 있는 엔트리(ts == now-window)는 세지 않는다
	requestLog := []int64{now - 60000}

	result := CheckRateLimit(requestLog, 1, 60000, now)
	if !result.Allowed {
		t.Fatalf("expected boundary entry to fall out of window, got %+v", result)
	}
}

func newTestGuard(t *testing.T, maxRequests, windowMs string) *AuthGuard {
	t.Helper()
	validator := &fakeValidator{result: &model.TokenValidation{Valid: true, UserID: "user-1"}}
	guard, err := NewAuthGuard(config.RateLimitConfig{MaxRequests: maxRequests, WindowMs: windowMs}, validator)
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}
	return guard
}

func TestAuthGuardDeniedRequestConsumesNoSlot(t *testing.T) {
	guard := newTestGuard(t, "2", "60000")
	now := int64(1_000_000)
	guard.nowMs = func() int64 { return now }

	req := model.GuardRequest{AuthorizationHeader: "Bearer good-token"}

	first := guard.Check(context.Background(), req)
	if !first.Allowed {
		t.Fatalf("expected first request allowed, got %+v", first)
	}
	second := guard.Check(context.Background(), req)
	if !second.Allowed {
		t.Fatalf("expected second request allowed, got %+v", second)
	}

	third := guard.Check(context.Background(), req)
	if third.Allowed || third.Reason != model.DenyRateLimited {
		t.Fatalf("expected rate_limited, got %+v", third)
	}
	if third.RetryAfterMs != 60000 {
		t.Fatalf("expected retryAfterMs 60000, got %d", third.RetryAfterMs)
	}

	// 거부된 요청은 로그에 기록되지 않으므로, 윈도우가 지나면 다시 2건 허용
	now += 60001
	fourth := guard.Check(context.Background(), req)
	if !fourth.Allowed {
		t.Fatalf("expected request allowed after window, got %+v", fourth)
	}
	fifth := guard.Check(context.Background(), req)
	if !fifth.Allowed {
		t.Fatalf("expected request allowed after window, got %+v", fifth)
	}
}

func TestAuthGuardRejectsUnauthenticated(t *testing.T) {
	guard := newTestGuard(t, "2", "60000")

	result := guard.Check(context.Background(), model.GuardRequest{})
	if result.Allowed || result.Reason != model.DenyMissingToken {
		t.Fatalf("expected missing_token, got %+v", result)
	}
}

func TestAuthGuardIsolatesIdentities(t *testing.T) {
	validator := &fakeValidator{result: &model.TokenValidation{Valid: true, UserID: "user-a"}}
	guard, err := NewAuthGuard(config.RateLimitConfig{MaxRequests: "1", WindowMs: "60000"}, validator)
	if err != nil {
		t.Fatalf("failed to build guard: %v", err)
	}

	req := model.GuardRequest{AuthorizationHeader: "Bearer token"}
	if result := guard.Check(context.Background(), req); !result.Allowed {
		t.Fatalf("expected user-a allowed, got %+v", result)
	}
	if result := guard.Check(context.Background(), req); result.Allowed {
		t.Fatalf("expected user-a rate limited, got %+v", result)
	}

	// 다른 주체는 별도 로그를 가진다
	validator.result = &model.TokenValidation{Valid: true, UserID: "user-b"}
	if result := guard.Check(context.Background(), req); !result.Allowed {
		t.Fatalf("expected user-b allowed, got %+v", result)
	}
}

func TestNewAuthGuardRejectsBadConfig(t *testing.T) {
	validator := &fakeValidator{}
	cases := []config.RateLimitConfig{
		{MaxRequests: "0", WindowMs: "60000"},
		{MaxRequests: "abc", WindowMs: "60000"},
		{MaxRequests: "100", WindowMs: "-1"},
		{MaxRequests: "100", WindowMs: ""},
	}
	for _, cfg := range cases {
		if _, err := NewAuthGuard(cfg, validator); !errors.Is(err, ErrMisconfigured) {
			t.Fatalf("expected ErrMisconfigured for %+v, got %v", cfg, err)
		}
	}
}
