package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestLedger(t *testing.T) (*Ledger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	clock := &stepClock{t: time.Date(2024, 2, 12, 9, 0, 0, 0, time.UTC)}
	l, err := NewLedger(NewInMemory(), WithClock(clock.now), WithLogger(zap.New(core)))
	require.NoError(t, err)
	return l, logs
}

func TestAppendStampsAndLogs(t *testing.T) {
	l, logs := newTestLedger(t)
	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithClientIP(ctx, "10.0.0.7")

	e, err := l.Append(ctx, "MOC-24-001", Entry{
		Resource: "moc",
		UserID:   "1",
		UserName: "Admin User",
		Action:   ActionStatusChange,
		Details:  "draft -> submitted",
	})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	require.Equal(t, "MOC-24-001", e.TargetID)
	require.Equal(t, "req-123", e.RequestID)
	require.Equal(t, "10.0.0.7", e.IP)
	require.False(t, e.Timestamp.IsZero())

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "audit", fields["type"])
	require.Equal(t, "STATUS_CHANGE", fields["event"])
	require.Equal(t, "req-123", fields["request_id"])
	require.Equal(t, "1", fields["user_id"])
}

func TestAppendValidates(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, " ", Entry{UserID: "1", Action: ActionWrite})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = l.Append(ctx, "x", Entry{UserID: "1", Action: "PURGE"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = l.Append(ctx, "x", Entry{Action: ActionWrite})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReadIsChronologicalAndStable(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	for _, details := range []string{"a", "b", "c"} {
		_, err := l.Append(ctx, "target", Entry{UserID: "1", Action: ActionWrite, Details: details})
		require.NoError(t, err)
	}

	first, err := l.Read(ctx, "target")
	require.NoError(t, err)
	second, err := l.Read(ctx, "target")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
	for i := 1; i < len(first); i++ {
		require.True(t, first[i].Timestamp.After(first[i-1].Timestamp))
	}

	first[0].Details = "tampered"
	again, err := l.Read(ctx, "target")
	require.NoError(t, err)
	require.Equal(t, "a", again[0].Details)
}

func TestAllInterleavesTargets(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	targets := []string{"MOC-1", "FAC-1", "MOC-1", "LINK-1"}
	for _, target := range targets {
		action := ActionWrite
		if target == "LINK-1" {
			action = ActionDelete
		}
		_, err := l.Append(ctx, target, Entry{UserID: "1", Action: action})
		require.NoError(t, err)
	}

	all, err := l.All(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		require.Equal(t, targets[i], e.TargetID)
	}

	deletes, err := l.All(ctx, Query{Action: ActionDelete})
	require.NoError(t, err)
	require.Len(t, deletes, 1)

	latest, err := l.All(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "MOC-1", latest[0].TargetID)
	require.Equal(t, "LINK-1", latest[1].TargetID)

	_, err = l.All(ctx, Query{Action: "NOPE"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("status_change")
	require.NoError(t, err)
	require.Equal(t, ActionStatusChange, a)
	_, err = ParseAction("explode")
	require.ErrorIs(t, err, apperr.ErrValidation)
}
