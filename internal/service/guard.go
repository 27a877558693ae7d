// Bank-sync 요청 게이트: bearer 토큰 검증 + sliding window rate limit
//
// 환경변수:
//   - SYNC_RATE_LIMIT_MAX: 윈도우당 허용 요청 수 (default: 100)
//   - SYNC_RATE_LIMIT_WINDOW_MS: 윈도우 길이 (default: 60000)

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
)

const bearerPrefix = "Bearer "

// TokenValidator - 외부 토큰 검증 협력자.
// 네트워크/DB를 호출할 수 있으며 실패(error)는 guard에서 internal_error로 변환된다.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*model.TokenValidation, error)
}

// ValidateBankSyncToken strips the bearer scheme and delegates the raw token
// to the validator. Validator-reported failure codes pass through verbatim;
// a validator error collapses to internal_error so callers never see
// validator internals.
func ValidateBankSyncToken(ctx context.Context, authorizationHeader string, validator TokenValidator) model.AuthResult {
	if authorizationHeader == "" {
		return model.AuthResult{Reason: model.DenyMissingToken}
	}
	if !strings.HasPrefix(authorizationHeader, bearerPrefix) {
		return model.AuthResult{Reason: model.DenyInvalidScheme}
	}

	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, bearerPrefix))
	validation, err := validator.Validate(ctx, token)
	if err != nil || validation == nil {
		return model.AuthResult{Reason: model.DenyInternalError}
	}
	if !validation.Valid {
		reason := validation.Error
		if reason == "" {
			reason = model.DenyInvalidToken
		}
		return model.AuthResult{Reason: reason}
	}

	return model.AuthResult{Authenticated: true, UserID: validation.UserID}
}

// CheckRateLimit counts log entries with timestamp > nowMs-windowMs.
// On success remaining reserves a slot for the request being evaluated
// (maxRequests - count - 1); on denial remaining is 0 and retryAfterMs is
// the wait until the oldest in-window entry leaves the window.
func CheckRateLimit(requestLog []int64, maxRequests int, windowMs, nowMs int64) model.RateLimitResult {
	cutoff := nowMs - windowMs

	count := 0
	var oldest int64
	for _, ts := range requestLog {
		if ts > cutoff {
			if count == 0 || ts < oldest {
				oldest = ts
			}
			count++
		}
	}

	if count >= maxRequests {
		retryAfter := oldest + windowMs - nowMs
		if retryAfter < 0 {
			retryAfter = 0
		}
		return model.RateLimitResult{Allowed: false, Remaining: 0, RetryAfterMs: retryAfter}
	}

	return model.RateLimitResult{Allowed: true, Remaining: maxRequests - count - 1}
}

// AuthGuard - 인증 + rate limit을 한 번에 수행하는 요청 게이트.
// 요청 로그는 guard 인스턴스가 단독 소유한다 (프로세스 로컬).
type AuthGuard struct {
	validator   TokenValidator
	maxRequests int
	windowMs    int64
	nowMs       func() int64

	// mu makes the count-then-append sequence a single critical section.
	// Without it two concurrent requests for one identity could both read
	// an under-limit count and both be admitted.
	mu   sync.Mutex
	logs map[string][]int64
}

func NewAuthGuard(cfg config.RateLimitConfig, validator TokenValidator) (*AuthGuard, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: token validator is required", ErrMisconfigured)
	}

	maxRequests, err := strconv.Atoi(cfg.MaxRequests)
	if err != nil || maxRequests <= 0 {
		return nil, fmt.Errorf("%w: invalid SYNC_RATE_LIMIT_MAX", ErrMisconfigured)
	}

	windowMs, err := strconv.ParseInt(cfg.WindowMs, 10, 64)
	if err != nil || windowMs <= 0 {
		return nil, fmt.Errorf("%w: invalid SYNC_RATE_LIMIT_WINDOW_MS", ErrMisconfigured)
	}

	return &AuthGuard{
		validator:   validator,
		maxRequests: maxRequests,
		windowMs:    windowMs,
		nowMs:       func() int64 { return time.Now().UnixMilli() },
		logs:        make(map[string][]int64),
	}, nil
}

// Check authenticates the request and admits it only if the identity is
// under its rate limit. The log is appended only on the success path, so a
// denied request never consumes a slot.
func (g *AuthGuard) Check(ctx context.Context, req model.GuardRequest) model.GuardResult {
	auth := ValidateBankSyncToken(ctx, req.AuthorizationHeader, g.validator)
	if !auth.Authenticated {
		return model.GuardResult{Reason: auth.Reason}
	}

	now := g.nowMs()

	g.mu.Lock()
	defer g.mu.Unlock()

	requestLog := g.logs[auth.UserID]
	limit := CheckRateLimit(requestLog, g.maxRequests, g.windowMs, now)
	if !limit.Allowed {
		return model.GuardResult{
			UserID:       auth.UserID,
			Reason:       model.DenyRateLimited,
			RetryAfterMs: limit.RetryAfterMs,
		}
	}

	// 윈도우 밖의 엔트리는 append 시점에 물리적으로 정리한다 (메모리 관리).
	cutoff := now - g.windowMs
	kept := requestLog[:0]
	for _, ts := range requestLog {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	g.logs[auth.UserID] = append(kept, now)

	return model.GuardResult{Allowed: true, UserID: auth.UserID}
}
