package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

func TestGeneratorIsDeterministicPerSeed(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.NextChange(), b.NextChange())
	}
}

func TestGeneratedChangesAreValid(t *testing.T) {
	svc, err := moc.NewService(moc.NewInMemory(), moc.WithPolicy(moc.Strict{}))
	require.NoError(t, err)
	actor := audit.Actor{UserID: "2", UserName: "Carlos Processos", Role: "process_engineer"}
	ctx := context.Background()

	g := NewGenerator(7)
	var c Counter
	for i := 0; i < 50; i++ {
		ch := g.NextChange()
		req, err := svc.Create(ctx, ch.Draft, actor)
		require.NoError(t, err)
		_, _, err = svc.AssessRisk(ctx, req.ID, actor, moc.RiskInput{Probability: ch.Probability, Severity: ch.Severity, Mitigation: ch.Mitigation}, 0)
		require.NoError(t, err)
		for _, st := range ch.Walk {
			_, err = svc.Transition(ctx, req.ID, st, actor, "", 0)
			require.NoError(t, err, "walk %v", ch.Walk)
		}
		c.Add(ch)
	}
	require.Equal(t, 50, c.Changes())
	total := 0
	for _, tier := range []risk.Tier{risk.TierLow, risk.TierMedium, risk.TierHigh, risk.TierExtreme} {
		total += c.ByTier(tier)
	}
	require.Equal(t, 50, total)
	require.NotEmpty(t, c.String())
}
