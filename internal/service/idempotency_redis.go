package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
)

// RedisIdempotencyStore - 다중 인스턴스 배포를 위한 redis 드라이버.
// terminal 엔트리는 redis TTL로 만료시키고, processing 엔트리는 만료 없이
// 저장해 in-flight 작업 추적을 잃지 않는다.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisIdempotencyStore(cfg config.RedisConfig, ttl time.Duration) (*RedisIdempotencyStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: REDIS_ADDR is required for the redis driver", ErrMisconfigured)
	}

	dbNum, err := strconv.Atoi(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REDIS_DB", ErrMisconfigured)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       dbNum,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "banksync:webhook:"
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (s *RedisIdempotencyStore) key(provider, eventID string) string {
	return s.prefix + EventKey(provider, eventID)
}

func (s *RedisIdempotencyStore) IsDuplicate(ctx context.Context, provider, eventID string) (bool, error) {
	raw, err := s.client.Get(ctx, s.key(provider, eventID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read webhook event: %w", err)
	}

	var entry model.WebhookEvent
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}

	return isDuplicateEntry(entry, s.now(), s.ttl), nil
}

func (s *RedisIdempotencyStore) Record(ctx context.Context, provider, eventID string, status model.WebhookStatus) error {
	key := EventKey(provider, eventID)
	entry := model.WebhookEvent{
		EventKey:    key,
		Provider:    provider,
		EventID:     eventID,
		Status:      status,
		ProcessedAt: s.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// processing 엔트리는 만료 없음 (terminal 상태 전까지 유지)
	expiry := s.ttl
	if status == model.WebhookProcessing {
		expiry = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, data, expiry).Err(); err != nil {
		return fmt.Errorf("failed to write webhook event: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) PruneExpired(ctx context.Context) (int, error) {
	// Redis already expires terminal entries via TTL; this sweep only has to
	// collect entries carrying the always-stale marker or written before a
	// TTL was configured.
	removed := 0
	var cursor uint64
	pattern := s.prefix + "*"
	now := s.now()

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan webhook events: %w", err)
		}

		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("failed to read webhook event: %w", err)
			}

			var entry model.WebhookEvent
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if !isPrunableEntry(entry, now, s.ttl) {
				continue
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete webhook event: %w", err)
			}
			removed++
		}

		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	return removed, nil
}

func (s *RedisIdempotencyStore) Close(context.Context) error {
	return s.client.Close()
}
