// 웹훅 idempotency 엔트리 저장 (postgres 드라이버)

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banksync/backend/internal/model"
)

// WebhookEventStore - webhook_events 테이블 기반 idempotency 저장소.
// (provider, eventId) 키당 1행을 유지하며, 중복/정리 판정 규칙은
// memory/redis 드라이버와 동일하다.
type WebhookEventStore struct {
	db  *Postgres
	ttl time.Duration
}

func NewWebhookEventStore(db *Postgres, ttl time.Duration) *WebhookEventStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookEventStore{db: db, ttl: ttl}
}

func (s *WebhookEventStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS webhook_events (
		event_key TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		status TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create webhook_events table: %w", err)
	}
	return nil
}

// IsDuplicate - failed는 재시도 가능, processing은 나이와 무관하게 중복,
// 그 외에는 TTL 이내 엔트리만 중복으로 판정
func (s *WebhookEventStore) IsDuplicate(ctx context.Context, provider, eventID string) (bool, error) {
	var status model.WebhookStatus
	var processedAt time.Time
	err := s.db.Pool.QueryRow(ctx, `
		SELECT status, processed_at
		FROM webhook_events
		WHERE event_key = $1
	`, eventKey(provider, eventID)).Scan(&status, &processedAt)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query webhook event: %w", err)
	}

	switch status {
	case model.WebhookFailed:
		return false, nil
	case model.WebhookProcessing:
		return true, nil
	}
	if processedAt.IsZero() {
		return false, nil
	}
	return time.Since(processedAt) <= s.ttl, nil
}

func (s *WebhookEventStore) Record(ctx context.Context, provider, eventID string, status model.WebhookStatus) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO webhook_events (event_key, provider, event_id, status, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_key) DO UPDATE
		SET status = EXCLUDED.status, processed_at = EXCLUDED.processed_at
	`, eventKey(provider, eventID), provider, eventID, string(status))
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// PruneExpired - terminal 상태이면서 TTL이 지난 엔트리만 제거.
// processing 엔트리는 제거 대상에서 제외한다.
func (s *WebhookEventStore) PruneExpired(ctx context.Context) (int, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM webhook_events
		WHERE status <> $1 AND processed_at < NOW() - make_interval(secs => $2)
	`, string(model.WebhookProcessing), s.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *WebhookEventStore) Close(context.Context) error {
	return nil
}

func eventKey(provider, eventID string) string {
	return provider + ":" + eventID
}
