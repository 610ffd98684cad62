package auth

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
)

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u User) (User, error)
	Find(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, u User) (User, error)
}

// NormalizeUser trims fields and checks required ones.
func NormalizeUser(u User) (User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Name == "" {
		return User{}, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if u.Email == "" {
		return User{}, fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email %q", apperr.ErrValidation, u.Email)
	}
	role, err := ParseRole(string(u.Role))
	if err != nil {
		return User{}, err
	}
	u.Role = role
	return u, nil
}

// InMemoryUsers implements UserStore with in-process concurrency safety.
type InMemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

var _ UserStore = (*InMemoryUsers)(nil)

func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// Create stores u. A blank ID is assigned.
func (s *InMemoryUsers) Create(ctx context.Context, u User) (User, error) {
	u, err := NormalizeUser(u)
	if err != nil {
		return User{}, err
	}
	if strings.TrimSpace(u.ID) == "" {
		u.ID = ids.WithPrefix("USR")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[u.ID]; exists {
		return User{}, fmt.Errorf("%w: user %s already exists", apperr.ErrConflict, u.ID)
	}
	if _, taken := s.byEmail[u.Email]; taken {
		return User{}, fmt.Errorf("%w: email %s already registered", apperr.ErrConflict, u.Email)
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *InMemoryUsers) Find(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return u, nil
}

func (s *InMemoryUsers) FindByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, fmt.Errorf("%w: user with email %s", apperr.ErrNotFound, email)
	}
	return s.byID[id], nil
}

func (s *InMemoryUsers) List(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update replaces the stored user with the same ID.
func (s *InMemoryUsers) Update(ctx context.Context, u User) (User, error) {
	u, err := NormalizeUser(u)
	if err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[u.ID]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, u.ID)
	}
	if owner, taken := s.byEmail[u.Email]; taken && owner != u.ID {
		return User{}, fmt.Errorf("%w: email %s already registered", apperr.ErrConflict, u.Email)
	}
	delete(s.byEmail, cur.Email)
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}
