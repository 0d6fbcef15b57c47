package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists one device's session under config.CacheKey.DeviceSessionKey.
type RedisStore struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

// NewRedisStore creates a RedisStore for deviceID.
func NewRedisStore(rdb *redis.Client, deviceID string) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: config.CacheKey.DeviceSessionKey(deviceID),
		now: time.Now,
	}
}

// Load returns the persisted session, or nil when none is stored.
func (s *RedisStore) Load(ctx context.Context) (*backend.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess backend.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Save stores the session until it expires. Sessions without a known
// expiry are kept until cleared.
func (s *RedisStore) Save(ctx context.Context, sess *backend.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var ttl time.Duration
	if exp := sess.Expiry(); !exp.IsZero() {
		ttl = exp.Sub(s.now())
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}

	if err := s.rdb.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
