package moc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Store persists change requests. Update must apply the new state and the
// appended history entries atomically, and only if the stored version still
// equals expectedVersion.
type Store interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, f Filter) ([]Request, error)
	Update(ctx context.Context, req Request, expectedVersion int64, appended ...HistoryEntry) error
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu   sync.RWMutex
	reqs map[string]*Request
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{reqs: make(map[string]*Request)}
}

func (s *InMemory) Create(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reqs[req.ID]; exists {
		return fmt.Errorf("%w: MOC %s already exists", apperr.ErrConflict, req.ID)
	}
	stored := req.Clone()
	s.reqs[req.ID] = &stored
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.reqs[id]
	if !ok {
		return Request{}, fmt.Errorf("%w: MOC %s", apperr.ErrNotFound, id)
	}
	return req.Clone(), nil
}

// List returns matching requests, newest first.
func (s *InMemory) List(ctx context.Context, f Filter) ([]Request, error) {
	s.mu.RLock()
	out := make([]Request, 0, len(s.reqs))
	for _, req := range s.reqs {
		if f.matches(*req) {
			out = append(out, req.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, req Request, expectedVersion int64, appended ...HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reqs[req.ID]
	if !ok {
		return fmt.Errorf("%w: MOC %s", apperr.ErrNotFound, req.ID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: MOC %s is at version %d, expected %d", apperr.ErrConflict, req.ID, cur.Version, expectedVersion)
	}
	if len(req.History) != len(cur.History)+len(appended) {
		return fmt.Errorf("%w: MOC %s history may only grow by the appended entries", apperr.ErrConflict, req.ID)
	}
	stored := req.Clone()
	s.reqs[req.ID] = &stored
	return nil
}

func sortNewestFirst(reqs []Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID > reqs[j].ID
		}
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}
