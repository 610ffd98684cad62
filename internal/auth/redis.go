package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

const defaultRefreshPrefix = "moc:refresh"

// RedisRefresh keeps refresh tokens in Redis so several API instances share
// sessions. Keys expire with the token.
type RedisRefresh struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

var _ RefreshStore = (*RedisRefresh)(nil)

// NewRedisRefresh constructs a Redis-backed refresh token store.
func NewRedisRefresh(client *red.Client, keyPrefix string) *RedisRefresh {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRefreshPrefix
	}
	return &RedisRefresh{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisRefresh) Save(ctx context.Context, tok RefreshToken) error {
	key := s.key(tok.ID)
	if key == "" {
		return fmt.Errorf("%w: refresh token id is required", apperr.ErrValidation)
	}
	ttl := tok.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: refresh token already expired", apperr.ErrValidation)
	}
	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefresh) Find(ctx context.Context, id string) (RefreshToken, error) {
	key := s.key(id)
	if key == "" {
		return RefreshToken{}, fmt.Errorf("%w: refresh token", apperr.ErrNotFound)
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return RefreshToken{}, fmt.Errorf("%w: refresh token", apperr.ErrNotFound)
		}
		return RefreshToken{}, fmt.Errorf("redis get refresh token: %w", err)
	}
	var tok RefreshToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return RefreshToken{}, fmt.Errorf("decode refresh token: %w", err)
	}
	return tok, nil
}

// Revoke deletes the token; a missing key is reported as not found.
func (s *RedisRefresh) Revoke(ctx context.Context, id string) error {
	key := s.key(id)
	if key == "" {
		return fmt.Errorf("%w: refresh token", apperr.ErrNotFound)
	}
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete refresh token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: refresh token", apperr.ErrNotFound)
	}
	return nil
}

func (s *RedisRefresh) key(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}
