// Package audit is the append-only ledger of actions taken against MOC Studio
// resources. Entries are never updated or removed; a DELETE action records that
// some other resource was deleted.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Action classifies an audit entry.
type Action string

const (
	ActionRead              Action = "READ"
	ActionWrite             Action = "WRITE"
	ActionLogin             Action = "LOGIN"
	ActionLogout            Action = "LOGOUT"
	ActionDelete            Action = "DELETE"
	ActionStatusChange      Action = "STATUS_CHANGE"
	ActionWorkOrder         Action = "WORK_ORDER"
	ActionSecurityViolation Action = "SECURITY_VIOLATION"
)

var knownActions = map[Action]bool{
	ActionRead: true, ActionWrite: true, ActionLogin: true, ActionLogout: true,
	ActionDelete: true, ActionStatusChange: true, ActionWorkOrder: true,
	ActionSecurityViolation: true,
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool { return knownActions[a] }

// ParseAction normalises a wire value such as "status_change".
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown audit action %q", apperr.ErrValidation, s)
	}
	return a, nil
}

// Change captures one field modification.
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Entry is one immutable ledger record. UserName and UserRole are snapshots
// taken at write time.
type Entry struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	Resource  string    `json:"resource"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserRole  string    `json:"user_role,omitempty"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
	Changes   []Change  `json:"changes,omitempty"`
	IP        string    `json:"ip,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Actor identifies who performed an action. Name and role are snapshots.
type Actor struct {
	UserID   string
	UserName string
	Role     string
}

// Entry builds an entry attributed to a.
func (a Actor) Entry(resource string, action Action, details string) Entry {
	return Entry{
		Resource: resource,
		UserID:   a.UserID,
		UserName: a.UserName,
		UserRole: a.Role,
		Action:   action,
		Details:  details,
	}
}

// Query filters the global view.
type Query struct {
	Limit  int
	Since  time.Time
	Action Action
}

// Store persists entries. Append must never overwrite an existing entry.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ByTarget(ctx context.Context, targetID string) ([]Entry, error)
	All(ctx context.Context, q Query) ([]Entry, error)
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// EffectiveLimit is q.Limit with the default and ceiling applied.
func (q Query) EffectiveLimit() int { return normalizeLimit(q.Limit) }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func copyEntry(e Entry) Entry {
	if len(e.Changes) > 0 {
		e.Changes = append([]Change(nil), e.Changes...)
	}
	return e
}
