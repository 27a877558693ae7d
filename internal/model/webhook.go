package model

import (
	"encoding/json"
	"time"
)

// ProviderWebhook - 은행 provider가 보낸 웹훅 이벤트
type ProviderWebhook struct {
	Provider     string          `json:"provider" binding:"required"`
	EventID      string          `json:"eventId" binding:"required"`
	EventType    string          `json:"eventType"`
	ConnectionID string          `json:"connectionId" binding:"required"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// WebhookStatus - 이벤트 처리 상태
//
// 상태 전이: (없음) → processing → {completed, failed}.
// failed → processing 재진입은 허용된다 (실패한 이벤트 재시도).
type WebhookStatus string

const (
	WebhookProcessing WebhookStatus = "processing"
	WebhookCompleted  WebhookStatus = "completed"
	WebhookFailed     WebhookStatus = "failed"
)

// WebhookEvent - (provider, eventId) 키당 최대 1건 유지되는 idempotency 엔트리
type WebhookEvent struct {
	EventKey    string
	Provider    string
	EventID     string
	Status      WebhookStatus
	ProcessedAt time.Time
}

// SyncSummary - 한 sync 사이클의 적용 결과 요약
type SyncSummary struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	Removed         int `json:"removed"`
	PendingResolved int `json:"pendingResolved"`
}

// WebhookAckResponse - 웹훅 수신 응답
type WebhookAckResponse struct {
	Status  string       `json:"status"` // processed | duplicate
	EventID string       `json:"eventId"`
	Summary *SyncSummary `json:"summary,omitempty"`
}
