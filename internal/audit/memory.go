package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	entries  []Entry
	byTarget map[string][]int
	seen     map[string]struct{}
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty ledger store.
func NewInMemory() *InMemory {
	return &InMemory{
		byTarget: make(map[string][]int),
		seen:     make(map[string]struct{}),
	}
}

func (s *InMemory) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[entry.ID]; dup {
		return fmt.Errorf("%w: audit entry %s already recorded", apperr.ErrConflict, entry.ID)
	}
	s.seen[entry.ID] = struct{}{}
	s.entries = append(s.entries, copyEntry(entry))
	s.byTarget[entry.TargetID] = append(s.byTarget[entry.TargetID], len(s.entries)-1)
	return nil
}

func (s *InMemory) ByTarget(ctx context.Context, targetID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byTarget[targetID]
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, copyEntry(s.entries[i]))
	}
	return out, nil
}

// All returns the newest entries matching q, ordered oldest first.
func (s *InMemory) All(ctx context.Context, q Query) ([]Entry, error) {
	limit := normalizeLimit(q.Limit)
	s.mu.RLock()
	var out []Entry
	for _, e := range s.entries {
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
