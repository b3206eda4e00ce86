package flowstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "opencloud:oauth:flow:"

// RedisStore is a Store backed by Redis. Expiry is enforced by key TTLs so
// several processes can share pending flows.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Save stores the encoded flow with TTL.
func (s *RedisStore) Save(ctx context.Context, state string, p *Pending, ttl time.Duration) error {
	if err := validate(state, p, ttl); err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal flow state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist flow state: %w", err)
	}
	return nil
}

// Take loads and deletes the flow in one GETDEL so a state can be redeemed
// once across processes.
func (s *RedisStore) Take(ctx context.Context, state string) (*Pending, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	payload, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load flow state: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode flow state: %w", err)
	}
	return &p, nil
}
