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

func newAdminFixture(t *testing.T) (*AdminService, *scoringFixture) {
	t.Helper()
	f := newScoringFixture(t, config.ScoringConfig{}, config.RewardsConfig{}, nil)
	anomaly := NewAnomalyService(f.ledger, f.log, config.AnomalyConfig{
		ScoreThreshold: 100,
		CountThreshold: 50,
		Window:         24 * time.Hour,
		ScanTimeout:    time.Second,
	}, discardLogger())
	return NewAdminService(f.svc, anomaly, f.ledger, f.log, discardLogger()), f
}

func TestAdminOverridesGoThroughLedgerPath(t *testing.T) {
	admin, f := newAdminFixture(t)
	ctx := context.Background()

	update, err := admin.AdjustScore(ctx, "u1", 42, "migration credit")
	require.NoError(t, err)
	assert.Equal(t, int64(42), update.Score.CurrentScore)
	assert.Equal(t, int64(42), f.index.scores["u1"], "override syncs the realtime index")

	update, err = admin.Suspend(ctx, "u1", "abuse")
	require.NoError(t, err)
	assert.True(t, update.Score.AccountSuspended)

	_, err = f.svc.RecordActivity(ctx, domain.ActivitySubmission{UserID: "u1", Type: domain.ActivityLike})
	assert.ErrorIs(t, err, domain.ErrAccountSuspended)

	update, err = admin.Unsuspend(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, update.Score.AccountSuspended)

	_, err = f.svc.RecordActivity(ctx, domain.ActivitySubmission{UserID: "u1", Type: domain.ActivityLike})
	assert.NoError(t, err)
}

func TestRankDistribution(t *testing.T) {
	admin, f := newAdminFixture(t)
	ctx := context.Background()

	seedUser(t, f.ledger, domain.UserScore{UserID: "u1", CurrentScore: 100, RankTier: domain.RankBronze})
	seedUser(t, f.ledger, domain.UserScore{UserID: "u2", CurrentScore: 1300, RankTier: domain.RankSilver})
	seedUser(t, f.ledger, domain.UserScore{UserID: "u3", CurrentScore: 1400, RankTier: domain.RankSilver})

	dist, err := admin.RankDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dist[domain.RankBronze])
	assert.Equal(t, int64(2), dist[domain.RankSilver])
}

func TestActivityStatistics(t *testing.T) {
	admin, f := newAdminFixture(t)
	ctx := context.Background()
	now := time.Now()

	for _, at := range []domain.ActivityType{domain.ActivityLike, domain.ActivityLike, domain.ActivitySave} {
		_, err := f.svc.RecordActivity(ctx, domain.ActivitySubmission{UserID: "u1", Type: at})
		require.NoError(t, err)
	}

	stats, err := admin.ActivityStatistics(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[domain.ActivityLike])
	assert.Equal(t, int64(1), stats[domain.ActivitySave])
}
