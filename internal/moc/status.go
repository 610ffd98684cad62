package moc

import (
	"fmt"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Status is the lifecycle state of a change request.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusSubmitted       Status = "submitted"
	StatusUnderEvaluation Status = "under_evaluation"
	StatusUnderReview     Status = "under_review"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusImplemented     Status = "implemented"
	StatusConcluded       Status = "concluded"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderEvaluation,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusImplemented,
	StatusConcluded,
}

var statusLabels = map[Status]string{
	StatusDraft:           "Draft",
	StatusSubmitted:       "Submitted",
	StatusUnderEvaluation: "Under Evaluation",
	StatusUnderReview:     "Under Review",
	StatusApproved:        "Approved",
	StatusRejected:        "Rejected",
	StatusImplemented:     "Implemented",
	StatusConcluded:       "Concluded",
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusConcluded
}

// Label is the display name.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseStatus accepts wire values and display labels ("Under Review").
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := Status(norm)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown MOC status %q", apperr.ErrValidation, raw)
	}
	return s, nil
}

// Type is the change category. It is informational only.
type Type string

const (
	TypeRoutine   Type = "routine"
	TypeMajor     Type = "major"
	TypeEmergency Type = "emergency"
)

// ParseType defaults a blank value to routine.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case TypeRoutine, TypeMajor, TypeEmergency:
		return t, nil
	case "":
		return TypeRoutine, nil
	}
	return "", fmt.Errorf("%w: unknown MOC type %q", apperr.ErrValidation, raw)
}

// EntryType classifies a history entry.
type EntryType string

const (
	EntryStatusChange EntryType = "status_change"
	EntryComment      EntryType = "comment"
	EntrySystem       EntryType = "system"
	EntryWorkOrder    EntryType = "work_order"
)
