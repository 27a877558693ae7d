// 웹훅 이벤트 중복 억제 저장소
//
// (provider, eventId) 키당 엔트리 1건을 유지하고, 같은 이벤트의 재전송을
// TTL 안에서 중복으로 판정한다. 드라이버: memory (default) / redis / postgres.

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/db"
	"github.com/banksync/backend/internal/model"
)

// Driver identifiers supported by the idempotency store factory.
const (
	IdempotencyDriverMemory   = "memory"
	IdempotencyDriverRedis    = "redis"
	IdempotencyDriverPostgres = "postgres"
)

// IdempotencyStore - 이벤트 키 기준 중복 판정/기록 저장소
//
// IsDuplicate 판정 규칙:
//   - 엔트리 없음 → 중복 아님
//   - status=failed → 중복 아님 (실패 이벤트는 나이와 무관하게 재시도 가능)
//   - status=processing → 중복 (TTL이 지나도 terminal 상태가 되기 전에는
//     재시도 대상으로 취급하지 않는다)
//   - TTL 경과 → 중복 아님
//   - 그 외 (completed, TTL 이내) → 중복
type IdempotencyStore interface {
	IsDuplicate(ctx context.Context, provider, eventID string) (bool, error)
	// Record upserts the entry for the key with processedAt = now,
	// unconditionally overwriting any prior entry.
	Record(ctx context.Context, provider, eventID string, status model.WebhookStatus) error
	// PruneExpired removes terminal entries past the TTL (or marked always
	// stale via a zero processedAt). Entries in processing are never removed.
	// Invoked by an external scheduler, never by reads or writes.
	PruneExpired(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// IdempotencyDeps - 특정 드라이버가 요구하는 외부 핸들
type IdempotencyDeps struct {
	Postgres *db.Postgres
}

// NewIdempotencyStore creates a store based on the configured driver.
func NewIdempotencyStore(cfg config.IdempotencyConfig, redisCfg config.RedisConfig, deps IdempotencyDeps) (IdempotencyStore, error) {
	ttl, err := time.ParseDuration(cfg.TTL)
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("%w: invalid IDEMPOTENCY_TTL", ErrMisconfigured)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = IdempotencyDriverMemory
	}

	switch driver {
	case IdempotencyDriverMemory:
		return NewMemoryIdempotencyStore(ttl), nil
	case IdempotencyDriverRedis:
		return NewRedisIdempotencyStore(redisCfg, ttl)
	case IdempotencyDriverPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("%w: postgres driver requires database handle", ErrMisconfigured)
		}
		return db.NewWebhookEventStore(deps.Postgres, ttl), nil
	default:
		return nil, fmt.Errorf("%w: unsupported idempotency driver: %s", ErrMisconfigured, driver)
	}
}

// EventKey builds the store key for a (provider, eventId) pair.
func EventKey(provider, eventID string) string {
	return provider + ":" + eventID
}

// MemoryIdempotencyStore - 프로세스 로컬 in-memory 드라이버
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]model.WebhookEvent
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotencyStore{
		entries: make(map[string]model.WebhookEvent),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) IsDuplicate(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[EventKey(provider, eventID)]
	if !ok {
		return false, nil
	}
	return isDuplicateEntry(entry, s.now(), s.ttl), nil
}

func (s *MemoryIdempotencyStore) Record(_ context.Context, provider, eventID string, status model.WebhookStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EventKey(provider, eventID)
	s.entries[key] = model.WebhookEvent{
		EventKey:    key,
		Provider:    provider,
		EventID:     eventID,
		Status:      status,
		ProcessedAt: s.now(),
	}
	return nil
}

func (s *MemoryIdempotencyStore) PruneExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if isPrunableEntry(entry, now, s.ttl) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryIdempotencyStore) Close(context.Context) error {
	return nil
}

// isDuplicateEntry applies the duplicate rules shared by the memory and
// redis drivers.
func isDuplicateEntry(entry model.WebhookEvent, now time.Time, ttl time.Duration) bool {
	if entry.Status == model.WebhookFailed {
		return false
	}
	// In-flight work stays a duplicate past the TTL until marked terminal.
	if entry.Status == model.WebhookProcessing {
		return true
	}
	if entry.ProcessedAt.IsZero() {
		return false
	}
	return now.Sub(entry.ProcessedAt) <= ttl
}

// isPrunableEntry - terminal 상태이면서 만료(또는 항상-만료 표시)된 엔트리만 제거 대상
func isPrunableEntry(entry model.WebhookEvent, now time.Time, ttl time.Duration) bool {
	if entry.Status == model.WebhookProcessing {
		return false
	}
	if entry.ProcessedAt.IsZero() {
		return true
	}
	return now.Sub(entry.ProcessedAt) > ttl
}
