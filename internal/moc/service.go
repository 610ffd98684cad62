// Package moc implements Management-of-Change requests: the status lifecycle,
// the per-request history trail and risk assessments attached to a request.
package moc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// FacilityChecker reports whether a facility exists.
type FacilityChecker interface {
	FacilityExists(ctx context.Context, id string) (bool, error)
}

// FacilityCheckerFunc adapts a function to FacilityChecker. It lets the
// catalog, which itself depends on the MOC service, be wired in afterwards.
type FacilityCheckerFunc func(ctx context.Context, id string) (bool, error)

func (f FacilityCheckerFunc) FacilityExists(ctx context.Context, id string) (bool, error) {
	return f(ctx, id)
}

// Auditor records global audit entries. *audit.Ledger satisfies it.
type Auditor interface {
	Append(ctx context.Context, targetID string, entry audit.Entry) (audit.Entry, error)
}

// Notifier receives fire-and-forget notifications. *notify.Hub satisfies it.
type Notifier interface {
	Notify(n notify.Notification)
}

const auditResource = "moc"

// Service coordinates MOC mutations: each change is computed in memory, then
// persisted with a version check, audited and announced.
type Service struct {
	store      Store
	policy     Policy
	facilities FacilityChecker
	auditor    Auditor
	notifier   Notifier
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

func WithFacilities(fc FacilityChecker) Option {
	return func(s *Service) { s.facilities = fc }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a Service over store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("moc store is required")
	}
	s := &Service{
		store:    store,
		policy:   Permissive{},
		notifier: notify.Discard{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the configured transition policy.
func (s *Service) Policy() Policy { return s.policy }

// Create stores a new draft. Creation is audited globally but adds nothing to
// the request's own history.
func (s *Service) Create(ctx context.Context, d Draft, actor Actor) (Request, error) {
	if err := validateActor(actor); err != nil {
		return Request{}, err
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Request{}, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	facilityID := strings.TrimSpace(d.FacilityID)
	if facilityID == "" {
		return Request{}, fmt.Errorf("%w: facility_id is required", apperr.ErrValidation)
	}
	typ, err := ParseType(d.Type)
	if err != nil {
		return Request{}, err
	}
	if s.facilities != nil {
		ok, err := s.facilities.FacilityExists(ctx, facilityID)
		if err != nil {
			return Request{}, fmt.Errorf("check facility: %w", err)
		}
		if !ok {
			return Request{}, fmt.Errorf("%w: facility %s", apperr.ErrNotFound, facilityID)
		}
	}

	now := s.now().UTC()
	req := Request{
		ID:            ids.WithPrefix("MOC"),
		Title:         title,
		Description:   strings.TrimSpace(d.Description),
		Scope:         strings.TrimSpace(d.Scope),
		Justification: strings.TrimSpace(d.Justification),
		Type:          typ,
		FacilityID:    facilityID,
		RequesterID:   actor.UserID,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
		History:       []HistoryEntry{},
	}
	if err := s.store.Create(ctx, req); err != nil {
		return Request{}, fmt.Errorf("create MOC: %w", err)
	}
	s.audit(ctx, req.ID, actor, audit.ActionWrite, "MOC created: "+req.Title, nil)
	s.notifier.Notify(notify.Notification{
		Title:   "MOC created",
		Message: fmt.Sprintf("%s: %s", req.ID, req.Title),
		Type:    notify.LevelSuccess,
	})
	return req, nil
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, f Filter) ([]Request, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown MOC status %q", apperr.ErrValidation, f.Status)
	}
	return s.store.List(ctx, f)
}

// History returns the request's trail in chronological order.
func (s *Service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	req, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return req.History, nil
}

// Transition changes the status of request id. expectedVersion 0 means the
// caller did not read a version; the version loaded here is used instead.
func (s *Service) Transition(ctx context.Context, id string, to Status, actor Actor, details string, expectedVersion int64) (Request, error) {
	cur, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return Request{}, err
	}
	next, err := Transition(cur, to, actor, details, s.now(), s.policy)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			obs.ObserveTransitionRejected(string(te.From), string(te.To))
		}
		return Request{}, err
	}
	if err := s.save(ctx, cur, &next); err != nil {
		return Request{}, err
	}

	obs.ObserveTransition(string(cur.Status), string(to))
	s.logger().Info("moc status changed",
		zap.String("moc_id", next.ID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
		zap.String("user_id", actor.UserID),
	)
	s.audit(ctx, next.ID, actor, audit.ActionStatusChange, details, []audit.Change{{
		Field: "status", OldValue: string(cur.Status), NewValue: string(to),
	}})
	level := notify.LevelInfo
	switch to {
	case StatusApproved, StatusConcluded:
		level = notify.LevelSuccess
	case StatusRejected:
		level = notify.LevelWarning
	}
	s.notifier.Notify(notify.Notification{
		Title:   "MOC status changed",
		Message: fmt.Sprintf("%s is now %s", next.ID, to.Label()),
		Type:    level,
	})
	return next, nil
}

// Comment appends a free-text comment entry.
func (s *Service) Comment(ctx context.Context, id string, actor Actor, text string, expectedVersion int64) (Request, error) {
	if err := validateActor(actor); err != nil {
		return Request{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Request{}, fmt.Errorf("%w: comment text is required", apperr.ErrValidation)
	}
	cur, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return Request{}, err
	}
	next := appendEntry(cur, HistoryEntry{
		UserID:   actor.UserID,
		UserName: actor.UserName,
		Action:   "Comment added",
		Type:     EntryComment,
		Details:  text,
	}, s.now())
	if err := s.save(ctx, cur, &next); err != nil {
		return Request{}, err
	}
	s.audit(ctx, next.ID, actor, audit.ActionWrite, "comment added", nil)
	return next, nil
}

// AssessRisk attaches a risk assessment. Out-of-range inputs are rejected,
// never clamped.
func (s *Service) AssessRisk(ctx context.Context, id string, actor Actor, in RiskInput, expectedVersion int64) (Request, risk.Assessment, error) {
	if err := validateActor(actor); err != nil {
		return Request{}, risk.Assessment{}, err
	}
	assessment, err := risk.Classify(in.Probability, in.Severity)
	if err != nil {
		return Request{}, risk.Assessment{}, err
	}
	if in.Residual != 0 {
		if !in.Residual.Valid() {
			return Request{}, risk.Assessment{}, fmt.Errorf("%w: unknown residual risk tier", apperr.ErrValidation)
		}
		if in.Residual > assessment.Tier {
			return Request{}, risk.Assessment{}, fmt.Errorf("%w: residual risk %s exceeds inherent risk %s", apperr.ErrValidation, in.Residual, assessment.Tier)
		}
	}
	mitigation := strings.TrimSpace(in.Mitigation)
	cur, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return Request{}, risk.Assessment{}, err
	}
	if cur.Status.Terminal() {
		return Request{}, risk.Assessment{}, fmt.Errorf("%w: MOC %s is %s", apperr.ErrValidation, cur.ID, cur.Status)
	}

	now := s.now()
	next := appendEntry(cur, HistoryEntry{
		UserID:   actor.UserID,
		UserName: actor.UserName,
		Action:   fmt.Sprintf("Risk assessed: %s (score %d)", assessment.Tier, assessment.Score),
		Type:     EntrySystem,
		Details:  mitigation,
	}, now)
	next.Risk = &RiskRecord{
		Probability: in.Probability,
		Severity:    in.Severity,
		Mitigation:  mitigation,
		Residual:    in.Residual,
		AssessedBy:  actor.UserID,
		AssessedAt:  next.UpdatedAt,
	}
	if err := s.save(ctx, cur, &next); err != nil {
		return Request{}, risk.Assessment{}, err
	}
	obs.ObserveClassification(assessment.Tier.String())

	var changes []audit.Change
	if cur.Risk != nil {
		changes = append(changes, audit.Change{
			Field:    "risk_score",
			OldValue: strconv.Itoa(cur.Risk.Probability * cur.Risk.Severity),
			NewValue: strconv.Itoa(assessment.Score),
		})
	}
	s.audit(ctx, next.ID, actor, audit.ActionWrite, "risk assessed: "+assessment.Tier.String(), changes)
	if assessment.Tier >= risk.TierHigh {
		s.notifier.Notify(notify.Notification{
			Title:   "High risk change",
			Message: fmt.Sprintf("%s requires %s", next.ID, assessment.RequiredApproval.Description()),
			Type:    notify.LevelWarning,
		})
	}
	return next, assessment, nil
}

// RecordWorkOrder notes on the request's trail that a work order was opened
// against it.
func (s *Service) RecordWorkOrder(ctx context.Context, id string, actor Actor, workOrderID, title string) (Request, error) {
	if err := validateActor(actor); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(workOrderID) == "" {
		return Request{}, fmt.Errorf("%w: work order id is required", apperr.ErrValidation)
	}
	// The entry does not depend on the MOC's state, so a version race is
	// retried against the fresh copy.
	var next Request
	for attempt := 1; ; attempt++ {
		cur, err := s.load(ctx, id, 0)
		if err != nil {
			return Request{}, err
		}
		next = appendEntry(cur, HistoryEntry{
			UserID:   actor.UserID,
			UserName: actor.UserName,
			Action:   "Work order created: " + workOrderID,
			Type:     EntryWorkOrder,
			Details:  strings.TrimSpace(title),
		}, s.now())
		err = s.save(ctx, cur, &next)
		if err == nil {
			break
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt == recordAttempts {
			return Request{}, err
		}
	}
	s.audit(ctx, next.ID, actor, audit.ActionWorkOrder, "work order "+workOrderID, nil)
	return next, nil
}

const recordAttempts = 3

// Exists reports whether a request with id is stored.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CountByStatus tallies every stored request by status.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	reqs, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(Statuses))
	for _, r := range reqs {
		out[r.Status]++
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id string, expectedVersion int64) (Request, error) {
	cur, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Request{}, err
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return Request{}, fmt.Errorf("%w: MOC %s is at version %d, expected %d", apperr.ErrConflict, cur.ID, cur.Version, expectedVersion)
	}
	return cur, nil
}

func (s *Service) save(ctx context.Context, cur Request, next *Request) error {
	next.Version = cur.Version + 1
	appended := next.History[len(cur.History):]
	if err := s.store.Update(ctx, *next, cur.Version, appended...); err != nil {
		return fmt.Errorf("save MOC %s: %w", cur.ID, err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, target string, actor Actor, action audit.Action, details string, changes []audit.Change) {
	if s.auditor == nil {
		return
	}
	entry := actor.Entry(auditResource, action, details)
	entry.Changes = changes
	_, err := s.auditor.Append(ctx, target, entry)
	if err != nil {
		s.logger().Warn("audit append failed", zap.String("target_id", target), zap.Error(err))
	}
}

func (s *Service) logger() *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return obs.Logger()
}
