package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	clientIPKey  ctxKey = "audit_client_ip"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithClientIP records the caller address for entries appended under ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// Ledger is the only writer of audit entries.
type Ledger struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithLogger overrides the logger used for audit log lines.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger constructs a ledger over store.
func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append stamps and stores an entry for targetID, then emits it as an audit
// log line enriched with request context.
func (l *Ledger) Append(ctx context.Context, targetID string, entry Entry) (Entry, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return Entry{}, fmt.Errorf("%w: audit target is required", apperr.ErrValidation)
	}
	if !entry.Action.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown audit action %q", apperr.ErrValidation, entry.Action)
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return Entry{}, fmt.Errorf("%w: audit actor is required", apperr.ErrValidation)
	}

	entry.ID = ids.New()
	entry.TargetID = targetID
	entry.Timestamp = l.now().UTC()
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}
	if entry.IP == "" {
		entry.IP = clientIPFromContext(ctx)
	}
	entry = copyEntry(entry)

	if err := l.store.Append(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	l.logger().Info("audit",
		zap.String("type", "audit"),
		zap.String("event", string(entry.Action)),
		zap.String("entry_id", entry.ID),
		zap.String("target_id", entry.TargetID),
		zap.String("resource", entry.Resource),
		zap.String("user_id", entry.UserID),
		zap.String("request_id", entry.RequestID),
		zap.String("details", entry.Details),
	)
	return entry, nil
}

// Read returns the entries recorded against targetID in chronological order.
func (l *Ledger) Read(ctx context.Context, targetID string) ([]Entry, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fmt.Errorf("%w: audit target is required", apperr.ErrValidation)
	}
	return l.store.ByTarget(ctx, targetID)
}

// All returns the global view: entries of every target interleaved by timestamp.
func (l *Ledger) All(ctx context.Context, q Query) ([]Entry, error) {
	if q.Action != "" && !q.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown audit action %q", apperr.ErrValidation, q.Action)
	}
	q.Limit = normalizeLimit(q.Limit)
	return l.store.All(ctx, q)
}

func (l *Ledger) logger() *zap.Logger {
	if l.log != nil {
		return l.log
	}
	return obs.Logger()
}
