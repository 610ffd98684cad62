package moc

import (
	"encoding/json"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// Actor identifies who performs a mutation. UserName is copied into history
// entries as it reads at the time of the action.
type Actor = audit.Actor

// HistoryEntry is one immutable line of an MOC's trail.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	Details   string    `json:"details,omitempty"`
}

// RiskRecord is the stored part of a risk assessment. Score, tier and
// approval are derived on demand. Residual is the tier expected once the
// mitigation is in place; zero means it was not assessed.
type RiskRecord struct {
	Probability int       `json:"probability"`
	Severity    int       `json:"severity"`
	Mitigation  string    `json:"mitigation,omitempty"`
	Residual    risk.Tier `json:"residual_risk,omitempty"`
	AssessedBy  string    `json:"assessed_by"`
	AssessedAt  time.Time `json:"assessed_at"`
}

// RiskInput is what an assessor supplies for a MOC.
type RiskInput struct {
	Probability int
	Severity    int
	Mitigation  string
	Residual    risk.Tier
}

// Assessment recomputes the classification from the stored inputs.
func (r RiskRecord) Assessment() (risk.Assessment, error) {
	return risk.Classify(r.Probability, r.Severity)
}

// StoredRisk is the persisted form of a RiskRecord: the inputs only.
type StoredRisk RiskRecord

// MarshalJSON adds the derived classification for API consumers. Persist
// StoredRisk instead.
func (r RiskRecord) MarshalJSON() ([]byte, error) {
	out := struct {
		StoredRisk
		Score            int           `json:"score,omitempty"`
		Tier             risk.Tier     `json:"tier,omitempty"`
		RequiredApproval risk.Approval `json:"required_approval,omitempty"`
	}{StoredRisk: StoredRisk(r)}
	if a, err := r.Assessment(); err == nil {
		out.Score = a.Score
		out.Tier = a.Tier
		out.RequiredApproval = a.RequiredApproval
	}
	return json.Marshal(out)
}

// Request is a Management-of-Change record.
type Request struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Scope         string         `json:"scope,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Type          Type           `json:"type"`
	FacilityID    string         `json:"facility_id"`
	RequesterID   string         `json:"requester_id"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Version       int64          `json:"version"`
	Risk          *RiskRecord    `json:"risk,omitempty"`
	History       []HistoryEntry `json:"history"`
}

// Clone returns a deep copy so callers cannot alias stored state.
func (r Request) Clone() Request {
	out := r
	out.History = append([]HistoryEntry(nil), r.History...)
	if out.History == nil {
		out.History = []HistoryEntry{}
	}
	if r.Risk != nil {
		rr := *r.Risk
		out.Risk = &rr
	}
	return out
}

// Draft carries the caller-supplied fields of a new request.
type Draft struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Scope         string `json:"scope"`
	Justification string `json:"justification"`
	Type          string `json:"type"`
	FacilityID    string `json:"facility_id"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status      Status
	FacilityID  string
	RequesterID string
	Limit       int
}

func (f Filter) matches(r Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.FacilityID != "" && r.FacilityID != f.FacilityID {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	return true
}
