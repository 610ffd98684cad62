package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
)

// RefreshStore manages refresh token lifecycle.
type RefreshStore interface {
	Save(ctx context.Context, tok RefreshToken) error
	Find(ctx context.Context, id string) (RefreshToken, error)
	Revoke(ctx context.Context, id string) error
}

// InMemoryRefresh implements RefreshStore for single-instance deployments.
type InMemoryRefresh struct {
	mu   sync.Mutex
	toks map[string]RefreshToken
}

var _ RefreshStore = (*InMemoryRefresh)(nil)

func NewInMemoryRefresh() *InMemoryRefresh {
	return &InMemoryRefresh{toks: make(map[string]RefreshToken)}
}

// Save stores tok and evicts tokens that expired by the time tok was issued.
func (s *InMemoryRefresh) Save(ctx context.Context, tok RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.toks {
		if !tok.CreatedAt.Before(cur.ExpiresAt) {
			delete(s.toks, id)
		}
	}
	s.toks[tok.ID] = tok
	return nil
}

func (s *InMemoryRefresh) Find(ctx context.Context, id string) (RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.toks[id]
	if !ok {
		return RefreshToken{}, fmt.Errorf("%w: refresh token", apperr.ErrNotFound)
	}
	return tok, nil
}

// Revoke deletes the token; a missing one is reported as not found.
func (s *InMemoryRefresh) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.toks[id]
	if !ok || tok.Revoked {
		return fmt.Errorf("%w: active refresh token", apperr.ErrNotFound)
	}
	delete(s.toks, id)
	return nil
}

func (s *InMemoryRefresh) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toks)
}

func generateRefreshToken(userID string, now time.Time, ttl time.Duration) (string, RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", RefreshToken{}, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	rec := RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hashSecret(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	return rec.ID + "." + secret, rec, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secureCompareHash(expectedHash, secret string) bool {
	actual := hashSecret(secret)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
