package model

import "time"

// DenyReason - guard가 요청을 거부한 사유 (닫힌 집합)
//
// 문자열 코드는 클라이언트 응답에 그대로 노출되므로 변경 시 주의.
type DenyReason string

const (
	DenyMissingToken  DenyReason = "missing_token"
	DenyInvalidScheme DenyReason = "invalid_scheme"
	DenyInvalidToken  DenyReason = "invalid_token"
	DenyTokenExpired  DenyReason = "token_expired"
	DenyInternalError DenyReason = "internal_error"
	DenyRateLimited   DenyReason = "rate_limited"
)

// TokenValidation - 외부 토큰 검증기가 돌려주는 결과
type TokenValidation struct {
	Valid     bool
	UserID    string
	ExpiresAt time.Time
	// Error is set when Valid is false (e.g. DenyTokenExpired).
	Error DenyReason
}

// AuthResult - bearer 토큰 검증 결과
type AuthResult struct {
	Authenticated bool
	UserID        string
	Reason        DenyReason
}

// RateLimitResult - sliding window 판정 결과
type RateLimitResult struct {
	Allowed      bool
	Remaining    int
	RetryAfterMs int64
}

// GuardRequest - guard 검사 입력 (HTTP 요청에서 추출)
type GuardRequest struct {
	AuthorizationHeader string
}

// GuardResult - guard 검사 출력
type GuardResult struct {
	Allowed bool
	UserID  string
	Reason  DenyReason
	// RetryAfterMs is set when Reason is DenyRateLimited.
	RetryAfterMs int64
}
