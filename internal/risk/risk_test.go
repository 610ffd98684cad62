package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
)

func TestClassifyScoreIsProduct(t *testing.T) {
	for p := MinLevel; p <= MaxLevel; p++ {
		for s := MinLevel; s <= MaxLevel; s++ {
			a, err := Classify(p, s)
			require.NoError(t, err)
			require.Equal(t, p*s, a.Score)
			require.Equal(t, ApprovalFor(a.Tier), a.RequiredApproval)
		}
	}
}

func TestTierMonotonicInScore(t *testing.T) {
	prev := Tier(0)
	for score := 1; score <= 25; score++ {
		tier, err := TierForScore(score)
		require.NoError(t, err)
		require.GreaterOrEqual(t, tier, prev, "tier decreased at score %d", score)
		prev = tier
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		p, s     int
		score    int
		tier     Tier
		approval Approval
	}{
		{3, 5, 15, TierExtreme, ApprovalDualSignOff},
		{2, 3, 6, TierMedium, ApprovalSupervisory},
		{2, 4, 8, TierHigh, ApprovalPeerReview},
		{2, 2, 4, TierMedium, ApprovalSupervisory},
		{1, 3, 3, TierLow, ApprovalOperational},
		{1, 2, 2, TierLow, ApprovalOperational},
		{5, 5, 25, TierExtreme, ApprovalDualSignOff},
		{1, 1, 1, TierLow, ApprovalOperational},
	}
	for _, tc := range cases {
		a, err := Classify(tc.p, tc.s)
		require.NoError(t, err)
		require.Equal(t, tc.score, a.Score)
		require.Equal(t, tc.tier, a.Tier, "score %d", tc.score)
		require.Equal(t, tc.approval, a.RequiredApproval, "score %d", tc.score)
	}
}

func TestClassifyRejectsOutOfRange(t *testing.T) {
	for _, in := range [][2]int{{0, 3}, {6, 1}, {3, 0}, {3, 6}, {-1, -1}} {
		_, err := Classify(in[0], in[1])
		require.ErrorIs(t, err, apperr.ErrValidation, "input %v", in)
	}
	_, err := TierForScore(26)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMatrixLayout(t *testing.T) {
	m := Matrix()
	require.Len(t, m, 5)
	require.Equal(t, 5, m[0][0].Probability)
	require.Equal(t, 1, m[0][0].Severity)
	require.Equal(t, 1, m[4][4].Probability)
	require.Equal(t, 5, m[4][4].Severity)
	require.Equal(t, TierExtreme, m[0][4].Tier)
	require.Equal(t, TierLow, m[4][0].Tier)
}

func TestTierTextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(MustClassify(4, 4))
	require.NoError(t, err)
	require.JSONEq(t, `{"probability":4,"severity":4,"score":16,"tier":"extreme","required_approval":"dual_sign_off"}`, string(raw))

	tier, err := ParseTier("Critical")
	require.NoError(t, err)
	require.Equal(t, TierExtreme, tier)

	_, err = ParseTier("catastrophic")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPresentIsSeparateLookup(t *testing.T) {
	require.Equal(t, "bg-red-600", Present(TierExtreme).Color)
	require.Equal(t, "bg-orange-500", Present(TierHigh).Color)
	require.Equal(t, "bg-yellow-500", Present(TierMedium).Color)
	require.Equal(t, "bg-emerald-500", Present(TierLow).Color)
	require.Equal(t, "Unclassified", Present(Tier(0)).Label)
}
