package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

func newAnomalyFixture(t *testing.T) (*AnomalyService, *fakeLedger, *fakeLog) {
	t.Helper()
	log := newFakeLog()
	ledger := newFakeLedger(log)
	svc := NewAnomalyService(ledger, log, config.AnomalyConfig{
		ScoreThreshold: 10,
		CountThreshold: 3,
		Window:         24 * time.Hour,
		ScanTimeout:    time.Second,
	}, discardLogger())
	return svc, ledger, log
}

func seedActivities(t *testing.T, log *fakeLog, userID string, at domain.ActivityType, n int, createdAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		outcome, err := log.AppendActivity(context.Background(), &domain.Activity{
			ID:         fmt.Sprintf("%s-%s-%d-%d", userID, at, createdAt.UnixNano(), i),
			UserID:     userID,
			Type:       at,
			ScoreDelta: at.DefaultWeight(),
			CreatedAt:  createdAt,
		})
		require.NoError(t, err)
		require.Equal(t, domain.AppendInserted, outcome)
	}
}

func TestScanUserFlagsScoreBurst(t *testing.T) {
	svc, ledger, log := newAnomalyFixture(t)
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "u1", CurrentScore: 11, LastActivityAt: time.Now()})
	// 3 saves plus a like is +11 in the window, above the score threshold
	// while no single type exceeds the count threshold.
	seedActivities(t, log, "u1", domain.ActivitySave, 3, time.Now())
	seedActivities(t, log, "u1", domain.ActivityLike, 1, time.Now())

	require.NoError(t, svc.ScanUser(ctx, "u1"))

	s, err := ledger.GetUserScore(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.SuspiciousActivity)
}

func TestScanUserFlagsTypeBurst(t *testing.T) {
	svc, ledger, log := newAnomalyFixture(t)
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "u1", CurrentScore: 4, LastActivityAt: time.Now()})
	// 4 comments is only +4 in score but trips the count threshold.
	seedActivities(t, log, "u1", domain.ActivityComment, 4, time.Now())

	require.NoError(t, svc.ScanUser(ctx, "u1"))

	s, err := ledger.GetUserScore(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.SuspiciousActivity)
}

func TestScanUserIgnoresNormalActivity(t *testing.T) {
	svc, ledger, log := newAnomalyFixture(t)
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "u1", CurrentScore: 5, LastActivityAt: time.Now()})
	seedActivities(t, log, "u1", domain.ActivitySave, 1, time.Now())
	seedActivities(t, log, "u1", domain.ActivityLike, 1, time.Now())

	require.NoError(t, svc.ScanUser(ctx, "u1"))

	s, err := ledger.GetUserScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, s.SuspiciousActivity)
}

func TestScanUserIgnoresActivityOutsideWindow(t *testing.T) {
	svc, ledger, log := newAnomalyFixture(t)
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "u1", CurrentScore: 500, LastActivityAt: time.Now()})
	seedActivities(t, log, "u1", domain.ActivitySave, 20, time.Now().Add(-48*time.Hour))

	require.NoError(t, svc.ScanUser(ctx, "u1"))

	s, err := ledger.GetUserScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, s.SuspiciousActivity)
}

func TestFindSuspiciousUsers(t *testing.T) {
	svc, ledger, _ := newAnomalyFixture(t)
	ctx := context.Background()

	seedUser(t, ledger, domain.UserScore{UserID: "spiky", CurrentScore: 200, PreviousScore: 50, LastActivityAt: time.Now()})
	seedUser(t, ledger, domain.UserScore{UserID: "steady", CurrentScore: 52, PreviousScore: 50, LastActivityAt: time.Now()})

	users, err := svc.FindSuspiciousUsers(ctx, 100)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "spiky", users[0].UserID)

	// Zero threshold falls back to the configured default.
	users, err = svc.FindSuspiciousUsers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestFindAbnormalPatterns(t *testing.T) {
	svc, _, log := newAnomalyFixture(t)
	ctx := context.Background()
	now := time.Now()

	seedActivities(t, log, "u1", domain.ActivityLike, 5, now)
	seedActivities(t, log, "u2", domain.ActivityLike, 2, now)

	patterns, err := svc.FindAbnormalPatterns(ctx, now.Add(-time.Hour), now.Add(time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "u1", patterns[0].UserID)
	assert.Equal(t, domain.ActivityLike, patterns[0].Type)
	assert.Equal(t, int64(5), patterns[0].Count)
}
