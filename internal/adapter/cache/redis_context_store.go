package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
	"github.com/redis/go-redis/v9"
)

// RedisContextStore persists the per-session cart context record, JSON-shaped
// {countryCode, languageCode, createdAt}, under a fixed key prefix. Read
// before every mutation, written after every creation, cleared at the start
// of every recovery.
type RedisContextStore struct {
	rdb *redis.Client
}

func NewRedisContextStore(rdb *redis.Client) *RedisContextStore {
	return &RedisContextStore{rdb: rdb}
}

func contextKey(sessionID string) string { return "cartctx:" + sessionID }

func (s *RedisContextStore) Load(ctx context.Context, sessionID string) (*entity.CartContext, error) {
	raw, err := s.rdb.Get(ctx, contextKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cc entity.CartContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode cart context: %w", err)
	}
	return &cc, nil
}

func (s *RedisContextStore) Save(ctx context.Context, sessionID string, cc entity.CartContext) error {
	raw, err := json.Marshal(cc)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, contextKey(sessionID), raw, 0).Err()
}

func (s *RedisContextStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, contextKey(sessionID)).Err()
}

var _ cart.ContextStore = (*RedisContextStore)(nil)
