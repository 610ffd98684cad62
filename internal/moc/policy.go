package moc

import (
	"fmt"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Policy decides which status edges are allowed. Terminal sources and no-op
// transitions are rejected by the engine before a policy is consulted.
type Policy interface {
	Name() string
	Allows(from, to Status) bool
}

// Permissive allows any non-terminal status to move to any other status,
// including skipping stages.
type Permissive struct{}

func (Permissive) Name() string { return "permissive" }

func (Permissive) Allows(from, to Status) bool {
	return from.Valid() && to.Valid()
}

// Strict enforces the documented approval order. Any non-terminal status may
// still be rejected.
type Strict struct{}

var strictEdges = map[Status]Status{
	StatusDraft:           StatusSubmitted,
	StatusSubmitted:       StatusUnderEvaluation,
	StatusUnderEvaluation: StatusUnderReview,
	StatusUnderReview:     StatusApproved,
	StatusApproved:        StatusImplemented,
	StatusImplemented:     StatusConcluded,
}

func (Strict) Name() string { return "strict" }

func (Strict) Allows(from, to Status) bool {
	if to == StatusRejected {
		return from.Valid() && !from.Terminal()
	}
	next, ok := strictEdges[from]
	return ok && next == to
}

// Next lists the statuses policy p allows from s.
func Next(p Policy, s Status) []Status {
	if s.Terminal() {
		return nil
	}
	var out []Status
	for _, to := range Statuses {
		if to != s && p.Allows(s, to) {
			out = append(out, to)
		}
	}
	return out
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return Permissive{}, nil
	case "strict":
		return Strict{}, nil
	}
	return nil, fmt.Errorf("%w: unknown transition policy %q", apperr.ErrValidation, name)
}
