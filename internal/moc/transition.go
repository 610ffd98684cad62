package moc

import (
	"fmt"
	"strings"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == apperr.ErrInvalidTransition
}

// Transition moves req to status `to` and appends exactly one status_change
// entry. req itself is never modified; the updated copy is returned.
func Transition(req Request, to Status, actor Actor, details string, now time.Time, policy Policy) (Request, error) {
	if policy == nil {
		policy = Permissive{}
	}
	if !to.Valid() {
		return Request{}, fmt.Errorf("%w: unknown MOC status %q", apperr.ErrValidation, to)
	}
	if err := validateActor(actor); err != nil {
		return Request{}, err
	}
	from := req.Status
	switch {
	case to == from:
		return Request{}, &TransitionError{From: from, To: to, Reason: "status unchanged"}
	case from.Terminal():
		return Request{}, &TransitionError{From: from, To: to, Reason: "source status is terminal"}
	case !policy.Allows(from, to):
		return Request{}, &TransitionError{From: from, To: to, Reason: policy.Name() + " policy disallows this change"}
	}

	out := appendEntry(req, HistoryEntry{
		UserID:   actor.UserID,
		UserName: actor.UserName,
		Action:   "Status change to: " + to.Label(),
		Type:     EntryStatusChange,
		Details:  strings.TrimSpace(details),
	}, now)
	out.Status = to
	return out, nil
}

// appendEntry returns a copy of req with entry appended. The entry timestamp
// is forced past the previous entry so history order matches time order.
// timestampResolution matches Postgres timestamptz so ordering survives a
// round trip through the store.
const timestampResolution = time.Microsecond

func appendEntry(req Request, entry HistoryEntry, now time.Time) Request {
	ts := now.UTC().Truncate(timestampResolution)
	if n := len(req.History); n > 0 {
		if last := req.History[n-1].Timestamp; !ts.After(last) {
			ts = last.Truncate(timestampResolution).Add(timestampResolution)
		}
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	entry.Timestamp = ts

	out := req.Clone()
	out.History = append(out.History, entry)
	out.UpdatedAt = ts
	return out
}

func validateActor(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return fmt.Errorf("%w: actor is required", apperr.ErrValidation)
	}
	return nil
}
