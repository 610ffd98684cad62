// Package risk implements the probability × severity classifier that drives
// MOC approval requirements. Everything here is pure and deterministic.
package risk

import (
	"fmt"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

// Scale bounds for both probability and severity.
const (
	MinLevel = 1
	MaxLevel = 5
)

// Tier is the bucketed risk classification. Ordering is meaningful: a higher
// value is a more severe tier.
type Tier int

const (
	TierLow Tier = iota + 1
	TierMedium
	TierHigh
	TierExtreme
)

// Approval is the sign-off required before a change at a given tier may proceed.
type Approval int

const (
	ApprovalOperational Approval = iota + 1
	ApprovalSupervisory
	ApprovalPeerReview
	ApprovalDualSignOff
)

// Assessment is the result of classifying one matrix cell.
type Assessment struct {
	Probability      int      `json:"probability"`
	Severity         int      `json:"severity"`
	Score            int      `json:"score"`
	Tier             Tier     `json:"tier"`
	RequiredApproval Approval `json:"required_approval"`
}

type band struct {
	minScore int
	tier     Tier
	approval Approval
}

// bands are ordered from the highest threshold down; the first match wins.
// Each lower bound is inclusive.
var bands = []band{
	{minScore: 15, tier: TierExtreme, approval: ApprovalDualSignOff},
	{minScore: 8, tier: TierHigh, approval: ApprovalPeerReview},
	{minScore: 4, tier: TierMedium, approval: ApprovalSupervisory},
	{minScore: 1, tier: TierLow, approval: ApprovalOperational},
}

// Classify scores a (probability, severity) pair. Values outside [1,5] are a
// caller error and are rejected rather than clamped.
func Classify(probability, severity int) (Assessment, error) {
	if err := checkLevel("probability", probability); err != nil {
		return Assessment{}, err
	}
	if err := checkLevel("severity", severity); err != nil {
		return Assessment{}, err
	}
	score := probability * severity
	b := bandFor(score)
	return Assessment{
		Probability:      probability,
		Severity:         severity,
		Score:            score,
		Tier:             b.tier,
		RequiredApproval: b.approval,
	}, nil
}

// MustClassify is Classify for inputs known to be on the grid. It panics otherwise.
func MustClassify(probability, severity int) Assessment {
	a, err := Classify(probability, severity)
	if err != nil {
		panic(err)
	}
	return a
}

// TierForScore maps a score in [1,25] to its tier.
func TierForScore(score int) (Tier, error) {
	if score < MinLevel*MinLevel || score > MaxLevel*MaxLevel {
		return 0, fmt.Errorf("%w: score %d outside [%d,%d]", apperr.ErrValidation, score, MinLevel*MinLevel, MaxLevel*MaxLevel)
	}
	return bandFor(score).tier, nil
}

// ApprovalFor returns the sign-off a tier requires.
func ApprovalFor(t Tier) Approval {
	for _, b := range bands {
		if b.tier == t {
			return b.approval
		}
	}
	return 0
}

// Matrix returns the full grid as the dashboard draws it: rows run from
// probability 5 down to 1, columns from severity 1 up to 5.
func Matrix() [][]Assessment {
	rows := make([][]Assessment, 0, MaxLevel)
	for p := MaxLevel; p >= MinLevel; p-- {
		row := make([]Assessment, 0, MaxLevel)
		for s := MinLevel; s <= MaxLevel; s++ {
			row = append(row, MustClassify(p, s))
		}
		rows = append(rows, row)
	}
	return rows
}

func bandFor(score int) band {
	for _, b := range bands {
		if score >= b.minScore {
			return b
		}
	}
	return bands[len(bands)-1]
}

func checkLevel(name string, v int) error {
	if v < MinLevel || v > MaxLevel {
		return fmt.Errorf("%w: %s %d outside [%d,%d]", apperr.ErrValidation, name, v, MinLevel, MaxLevel)
	}
	return nil
}

var tierNames = map[Tier]string{
	TierLow:     "low",
	TierMedium:  "medium",
	TierHigh:    "high",
	TierExtreme: "extreme",
}

// Valid reports whether t is one of the four tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier accepts the wire name of a tier; "critical" is an alias of "extreme".
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "critical" {
		return TierExtreme, nil
	}
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown risk tier %q", apperr.ErrValidation, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if _, ok := tierNames[t]; !ok {
		return nil, fmt.Errorf("risk: cannot marshal %s", t)
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var approvalNames = map[Approval]string{
	ApprovalOperational: "operational_clearance",
	ApprovalSupervisory: "supervisory_clearance",
	ApprovalPeerReview:  "peer_review_department_head",
	ApprovalDualSignOff: "dual_sign_off",
}

var approvalDescriptions = map[Approval]string{
	ApprovalOperational: "Standard operational clearance",
	ApprovalSupervisory: "Standard supervisory clearance",
	ApprovalPeerReview:  "Formal peer review and department head approval",
	ApprovalDualSignOff: "Dual sign-off: safety director and technical manager",
}

func (a Approval) String() string {
	if name, ok := approvalNames[a]; ok {
		return name
	}
	return fmt.Sprintf("approval(%d)", int(a))
}

// Description is the human-readable sign-off requirement.
func (a Approval) Description() string {
	return approvalDescriptions[a]
}

func (a Approval) MarshalText() ([]byte, error) {
	if _, ok := approvalNames[a]; !ok {
		return nil, fmt.Errorf("risk: cannot marshal %s", a)
	}
	return []byte(a.String()), nil
}

func (a *Approval) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(strings.ToLower(string(b)))
	for v, name := range approvalNames {
		if name == s {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown approval %q", apperr.ErrValidation, s)
}
