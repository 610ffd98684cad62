package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// DocumentStore is an opaque key-value store of JSON documents grouped by kind.
type DocumentStore interface {
	Get(ctx context.Context, kind, id string) ([]byte, error)
	Put(ctx context.Context, kind, id string, doc []byte) error
	Delete(ctx context.Context, kind, id string) error
	List(ctx context.Context, kind string) ([][]byte, error)
}

// InMemoryDocuments implements DocumentStore with in-process concurrency safety.
type InMemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ DocumentStore = (*InMemoryDocuments)(nil)

func NewInMemoryDocuments() *InMemoryDocuments {
	return &InMemoryDocuments{docs: make(map[string]map[string][]byte)}
}

func (s *InMemoryDocuments) Get(ctx context.Context, kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	return append([]byte(nil), doc...), nil
}

func (s *InMemoryDocuments) Put(ctx context.Context, kind, id string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.docs[kind]
	if !ok {
		bucket = make(map[string][]byte)
		s.docs[kind] = bucket
	}
	bucket[id] = append([]byte(nil), doc...)
	return nil
}

func (s *InMemoryDocuments) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[kind][id]; !ok {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	delete(s.docs[kind], id)
	return nil
}

// List returns documents ordered by id.
func (s *InMemoryDocuments) List(ctx context.Context, kind string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.docs[kind]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, append([]byte(nil), bucket[k]...))
	}
	return out, nil
}
