package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

func TestDecayedScore(t *testing.T) {
	tests := []struct {
		score  int64
		factor float64
		want   int64
	}{
		{1000, 0.1, 900},
		{100, 0.25, 75},
		{0, 0.1, 0},
		{1, 0.9, 0},
		{7, 0.1, 6},
		{50, 1.0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DecayedScore(tt.score, tt.factor), "score=%d factor=%v", tt.score, tt.factor)
	}
}

func newDecayFixture(t *testing.T, cfg config.DecayConfig) (*DecayService, *fakeLedger, *fakeIndex) {
	t.Helper()
	ledger := newFakeLedger(nil)
	index := newFakeIndex()
	svc := NewDecayService(ledger, index, domain.MustDefaultRankTable(), cfg, discardLogger())
	return svc, ledger, index
}

func seedUser(t *testing.T, ledger *fakeLedger, s domain.UserScore) {
	t.Helper()
	if s.RankTier == "" {
		s.RankTier = domain.RankBronze
	}
	require.NoError(t, ledger.InsertUserScore(context.Background(), &s, ""))
}

func TestDecayRunTargetsOnlyInactiveUsers(t *testing.T) {
	svc, ledger, index := newDecayFixture(t, config.DecayConfig{
		InactivityPeriod: 30 * 24 * time.Hour,
		DecayFactor:      0.1,
		BatchSize:        10,
	})
	ctx := context.Background()
	old := time.Now().Add(-40 * 24 * time.Hour)

	seedUser(t, ledger, domain.UserScore{UserID: "stale", CurrentScore: 1000, LastActivityAt: old})
	seedUser(t, ledger, domain.UserScore{UserID: "active", CurrentScore: 1000, LastActivityAt: time.Now()})
	seedUser(t, ledger, domain.UserScore{UserID: "suspended", CurrentScore: 1000, LastActivityAt: old, AccountSuspended: true})
	seedUser(t, ledger, domain.UserScore{UserID: "broke", CurrentScore: 0, LastActivityAt: old})

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err := ledger.GetUserScore(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(900), stale.CurrentScore)
	assert.Equal(t, int64(1000), stale.PreviousScore)
	assert.False(t, stale.LastDecayAt.IsZero())
	assert.Equal(t, int64(900), index.scores["stale"], "index synced after decay")

	for _, u := range []string{"active", "suspended", "broke"} {
		s, err := ledger.GetUserScore(ctx, u)
		require.NoError(t, err)
		assert.NotEqual(t, int64(900), s.CurrentScore, "%s must not decay", u)
	}
}

func TestDecayWatermarkPreventsDoubleDecay(t *testing.T) {
	svc, ledger, _ := newDecayFixture(t, config.DecayConfig{
		InactivityPeriod: 30 * 24 * time.Hour,
		DecayFactor:      0.1,
		BatchSize:        10,
	})
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "stale", CurrentScore: 1000, LastActivityAt: time.Now().Add(-60 * 24 * time.Hour)})

	n, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second pass within the period decays nobody")

	s, err := ledger.GetUserScore(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(900), s.CurrentScore)
}

func TestDecayReclassifiesTier(t *testing.T) {
	svc, ledger, _ := newDecayFixture(t, config.DecayConfig{
		InactivityPeriod: 30 * 24 * time.Hour,
		DecayFactor:      0.5,
		BatchSize:        10,
	})
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{
		UserID:         "stale",
		CurrentScore:   2200,
		RankTier:       domain.RankDiamond,
		LastActivityAt: time.Now().Add(-60 * 24 * time.Hour),
	})

	_, err := svc.Run(ctx)
	require.NoError(t, err)

	s, err := ledger.GetUserScore(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), s.CurrentScore)
	assert.Equal(t, domain.RankBronze, s.RankTier)
}

func TestDecaySkipsLostRace(t *testing.T) {
	svc, ledger, _ := newDecayFixture(t, config.DecayConfig{
		InactivityPeriod: 30 * 24 * time.Hour,
		DecayFactor:      0.1,
		BatchSize:        10,
	})
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "stale", CurrentScore: 1000, LastActivityAt: time.Now().Add(-60 * 24 * time.Hour)})
	ledger.failUpdates = 1

	n, err := svc.Run(ctx)
	require.NoError(t, err, "a lost race is a skip, not a failure")
	assert.Zero(t, n)

	s, err := ledger.GetUserScore(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), s.CurrentScore)
}
