package moc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

type facilitySet map[string]bool

func (f facilitySet) FacilityExists(ctx context.Context, id string) (bool, error) {
	return f[id], nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

type fixture struct {
	svc      *Service
	ledger   *audit.Ledger
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	ledger, err := audit.NewLedger(audit.NewInMemory())
	require.NoError(t, err)
	n := &recordingNotifier{}
	base := []Option{
		WithFacilities(facilitySet{"1": true}),
		WithAuditor(ledger),
		WithNotifier(n),
	}
	svc, err := NewService(NewInMemory(), append(base, opts...)...)
	require.NoError(t, err)
	return fixture{svc: svc, ledger: ledger, notifier: n}
}

func createDraft(t *testing.T, svc *Service) Request {
	t.Helper()
	req, err := svc.Create(context.Background(), Draft{
		Title:      "Upgrade of gas compression system",
		FacilityID: "1",
		Type:       "major",
	}, engineer)
	require.NoError(t, err)
	return req
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, Draft{FacilityID: "1"}, engineer)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Create(ctx, Draft{Title: "x"}, engineer)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Create(ctx, Draft{Title: "x", FacilityID: "99"}, engineer)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Create(ctx, Draft{Title: "x", FacilityID: "1", Type: "urgent"}, engineer)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Create(ctx, Draft{Title: "x", FacilityID: "1"}, Actor{})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateStartsEmptyDraft(t *testing.T) {
	f := newFixture(t)
	req := createDraft(t, f.svc)

	require.Equal(t, StatusDraft, req.Status)
	require.Equal(t, TypeMajor, req.Type)
	require.Equal(t, "2", req.RequesterID)
	require.EqualValues(t, 1, req.Version)
	require.Empty(t, req.History)

	entries, err := f.ledger.Read(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.ActionWrite, entries[0].Action)
}

func TestLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := createDraft(t, f.svc)

	step := func(to Status, wantLen int, wantErr error) {
		t.Helper()
		_, err := f.svc.Transition(ctx, req.ID, to, engineer, "", 0)
		if wantErr != nil {
			require.ErrorIs(t, err, wantErr)
		} else {
			require.NoError(t, err)
		}
		history, err := f.svc.History(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, history, wantLen)
	}

	step(StatusSubmitted, 1, nil)
	step(StatusApproved, 2, nil)
	step(StatusApproved, 2, apperr.ErrInvalidTransition)
	step(StatusConcluded, 3, nil)
	step(StatusRejected, 3, apperr.ErrInvalidTransition)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConcluded, got.Status)
	require.EqualValues(t, 4, got.Version)
	for _, e := range got.History {
		require.Equal(t, EntryStatusChange, e.Type)
	}

	entries, err := f.ledger.All(ctx, audit.Query{Action: audit.ActionStatusChange})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []audit.Change{{Field: "status", OldValue: "approved", NewValue: "concluded"}}, entries[2].Changes)
}

func TestHistoryReadsAreStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := createDraft(t, f.svc)
	_, err := f.svc.Transition(ctx, req.ID, StatusSubmitted, engineer, "", 0)
	require.NoError(t, err)
	_, err = f.svc.Comment(ctx, req.ID, engineer, "vendor datasheet attached", 0)
	require.NoError(t, err)

	first, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	second, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	first[0].UserName = "someone else"
	third, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "Carlos Processos", third[0].UserName)
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := createDraft(t, f.svc)

	_, err := f.svc.Transition(ctx, req.ID, StatusSubmitted, engineer, "", req.Version)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, StatusUnderEvaluation, engineer, "", req.Version)
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, got.Status)
	require.Len(t, got.History, 1)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := createDraft(t, f.svc)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Transition(ctx, req.ID, StatusSubmitted, engineer, "", req.Version); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	history, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestStrictServiceRejectsSkips(t *testing.T) {
	f := newFixture(t, WithPolicy(Strict{}))
	ctx := context.Background()
	req := createDraft(t, f.svc)

	_, err := f.svc.Transition(ctx, req.ID, StatusApproved, engineer, "", 0)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.Transition(ctx, req.ID, StatusRejected, engineer, "out of budget", 0)
	require.NoError(t, err)
}

func TestAssessRisk(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	req := createDraft(t, f.svc)

	_, _, err := f.svc.AssessRisk(ctx, req.ID, engineer, RiskInput{Probability: 6, Severity: 1}, 0)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = f.svc.AssessRisk(ctx, req.ID, engineer, RiskInput{Probability: 2, Severity: 2, Residual: risk.TierHigh}, 0)
	require.ErrorIs(t, err, apperr.ErrValidation, "residual above inherent")
	_, _, err = f.svc.AssessRisk(ctx, req.ID, engineer, RiskInput{Probability: 2, Severity: 2, Residual: risk.Tier(9)}, 0)
	require.ErrorIs(t, err, apperr.ErrValidation)

	updated, a, err := f.svc.AssessRisk(ctx, req.ID, engineer, RiskInput{Probability: 3, Severity: 5, Mitigation: "redundant PSV", Residual: risk.TierMedium}, 0)
	require.NoError(t, err)
	require.Equal(t, risk.TierMedium, updated.Risk.Residual)
	require.Equal(t, 15, a.Score)
	require.Equal(t, risk.TierExtreme, a.Tier)
	require.NotNil(t, updated.Risk)
	require.Len(t, updated.History, 1)
	require.Equal(t, EntrySystem, updated.History[0].Type)

	raw, err := json.Marshal(updated.Risk)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.EqualValues(t, 15, decoded["score"])
	require.Equal(t, "extreme", decoded["tier"])
	require.Equal(t, "dual_sign_off", decoded["required_approval"])
	require.Equal(t, "medium", decoded["residual_risk"])

	raw, err = json.Marshal(StoredRisk(*updated.Risk))
	require.NoError(t, err)
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotContains(t, decoded, "score")
	require.NotContains(t, decoded, "tier")
	require.NotContains(t, decoded, "required_approval")

	require.NotEmpty(t, f.notifier.got)
	last := f.notifier.got[len(f.notifier.got)-1]
	require.Equal(t, notify.LevelWarning, last.Type)
}

// racingStore reports a version conflict for the first n updates, as if
// another writer got there first.
type racingStore struct {
	*InMemory
	n int
}

func (s *racingStore) Update(ctx context.Context, req Request, expectedVersion int64, appended ...HistoryEntry) error {
	if s.n > 0 {
		s.n--
		return fmt.Errorf("%w: lost race", apperr.ErrConflict)
	}
	return s.InMemory.Update(ctx, req, expectedVersion, appended...)
}

func TestRecordWorkOrderRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name      string
		conflicts int
		wantErr   error
	}{
		{name: "recovers", conflicts: recordAttempts - 1},
		{name: "gives up", conflicts: recordAttempts, wantErr: apperr.ErrConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := &racingStore{InMemory: NewInMemory()}
			svc, err := NewService(store, WithFacilities(facilitySet{"1": true}))
			require.NoError(t, err)
			req := createDraft(t, svc)
			store.n = tc.conflicts

			_, err = svc.RecordWorkOrder(ctx, req.ID, engineer, "WO-1", "Replace actuator")
			history, herr := svc.History(ctx, req.ID)
			require.NoError(t, herr)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Empty(t, history)
				return
			}
			require.NoError(t, err)
			require.Len(t, history, 1)
			require.Equal(t, EntryWorkOrder, history[0].Type)
		})
	}
}

func TestRecordWorkOrderAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := createDraft(t, f.svc)
	other := createDraft(t, f.svc)
	_, err := f.svc.Transition(ctx, other.ID, StatusSubmitted, engineer, "", 0)
	require.NoError(t, err)

	updated, err := f.svc.RecordWorkOrder(ctx, req.ID, engineer, "WO-001", "Replace valve")
	require.NoError(t, err)
	require.Equal(t, EntryWorkOrder, updated.History[0].Type)

	counts, err := f.svc.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[StatusDraft])
	require.Equal(t, 1, counts[StatusSubmitted])

	ok, err := f.svc.Exists(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.svc.Exists(ctx, "MOC-missing")
	require.NoError(t, err)
	require.False(t, ok)

	drafts, err := f.svc.List(ctx, Filter{Status: StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	_, err = f.svc.List(ctx, Filter{Status: "bogus"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "MOC-nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Transition(context.Background(), "MOC-nope", StatusSubmitted, engineer, "", 0)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
