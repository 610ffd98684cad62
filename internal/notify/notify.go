// Package notify fans fire-and-forget notifications out to live subscribers
// such as SSE clients.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

// Level is the notification type shown by the dashboard toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel validates a wire value.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return l, nil
	case "":
		return LevelInfo, nil
	}
	return "", fmt.Errorf("%w: unknown notification type %q", apperr.ErrValidation, s)
}

// Notification is one toast message.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Level     `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	subscriberBuffer = 16
	recentCapacity   = 32
)

// Hub fan-outs notifications to all active subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Notification
	next   int
	recent []Notification
	now    func() time.Time
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan Notification),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// notifications. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Notify stamps n and delivers it without blocking.
func (h *Hub) Notify(n Notification) {
	if n.Type == "" {
		n.Type = LevelInfo
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = h.now().UTC()
	}

	h.mu.Lock()
	h.recent = append(h.recent, n)
	if len(h.recent) > recentCapacity {
		h.recent = h.recent[len(h.recent)-recentCapacity:]
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
			obs.ObserveNotificationDropped()
		}
	}
}

// Recent returns up to limit of the latest notifications, oldest first.
func (h *Hub) Recent(limit int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.recent) {
		limit = len(h.recent)
	}
	out := make([]Notification, limit)
	copy(out, h.recent[len(h.recent)-limit:])
	return out
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Discard drops every notification. Useful where no sink is configured.
type Discard struct{}

func (Discard) Notify(Notification) {}
