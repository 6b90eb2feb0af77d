package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

type adjustment struct {
	userID string
	delta  int64
}

type recordingAdjuster struct {
	mu    sync.Mutex
	calls []adjustment
}

func (a *recordingAdjuster) AdjustScore(_ context.Context, userID string, delta int64, _ string) (*domain.ScoreUpdate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, adjustment{userID: userID, delta: delta})
	return &domain.ScoreUpdate{Score: &domain.UserScore{UserID: userID, CurrentScore: delta}}, nil
}

func newBadgeFixture(t *testing.T, definitions []domain.Badge, expiry time.Duration) (*BadgeService, *fakeBadgeStore, *StaticMetricSource, *recordingAdjuster) {
	t.Helper()
	store := newFakeBadgeStore()
	metrics := NewStaticMetricSource()
	adjuster := &recordingAdjuster{}
	svc := NewBadgeService(
		store,
		metrics,
		adjuster,
		config.BadgesConfig{Definitions: definitions},
		config.RewardsConfig{Expiry: expiry},
		discardLogger(),
	)
	return svc, store, metrics, adjuster
}

var testBadges = []domain.Badge{
	{Code: "TEN_LIKES", Name: "Ten Likes", Requirement: domain.RequirementLikesReceived, Threshold: 10, PointsAwarded: 50},
	{Code: "FIRST_POST", Name: "First Post", Requirement: domain.RequirementContentCreated, Threshold: 1},
}

func TestEvaluateUserAwardsOnThresholdCrossing(t *testing.T) {
	svc, store, metrics, _ := newBadgeFixture(t, testBadges, 0)
	ctx := context.Background()
	notifier := &fakeNotifier{}
	svc.SetNotifier(notifier)

	metrics.Set("u1", domain.UserMetrics{domain.RequirementLikesReceived: 9})
	awarded, err := svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, awarded, "below threshold")

	metrics.Set("u1", domain.UserMetrics{domain.RequirementLikesReceived: 10})
	awarded, err = svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "TEN_LIKES", awarded[0].Code)

	badges, err := svc.UserBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)

	rewards, err := store.UnclaimedRewards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, domain.RewardBadgeBonus, rewards[0].Type)
	assert.Equal(t, int64(50), rewards[0].Points)

	events := notifier.byKind("badge")
	require.Len(t, events, 1)
	assert.Equal(t, "TEN_LIKES", events[0].detail)
}

func TestEvaluateUserIsIdempotent(t *testing.T) {
	svc, store, metrics, _ := newBadgeFixture(t, testBadges, 0)
	ctx := context.Background()

	metrics.Set("u1", domain.UserMetrics{domain.RequirementLikesReceived: 100})
	awarded, err := svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, awarded, 1)

	awarded, err = svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, awarded, "replay awards nothing")

	rewards, err := store.UnclaimedRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rewards, 1, "no duplicate reward")
}

func TestZeroPointBadgeIssuesNoReward(t *testing.T) {
	svc, store, metrics, _ := newBadgeFixture(t, testBadges, 0)
	ctx := context.Background()

	metrics.Set("u1", domain.UserMetrics{domain.RequirementContentCreated: 1})
	awarded, err := svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "FIRST_POST", awarded[0].Code)

	rewards, err := store.UnclaimedRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rewards)
}

func TestClaimRewardAppliesPointsOnce(t *testing.T) {
	svc, store, metrics, adjuster := newBadgeFixture(t, testBadges, 0)
	ctx := context.Background()

	metrics.Set("u1", domain.UserMetrics{domain.RequirementLikesReceived: 10})
	_, err := svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)

	rewards, err := store.UnclaimedRewards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rewards, 1)

	claimed, err := svc.ClaimReward(ctx, rewards[0].ID, "u1")
	require.NoError(t, err)
	assert.True(t, claimed.IsClaimed)
	assert.False(t, claimed.ClaimedAt.IsZero())

	require.Len(t, adjuster.calls, 1)
	assert.Equal(t, adjustment{userID: "u1", delta: 50}, adjuster.calls[0])

	_, err = svc.ClaimReward(ctx, rewards[0].ID, "u1")
	assert.ErrorIs(t, err, domain.ErrRewardAlreadyClaimed)
	assert.Len(t, adjuster.calls, 1, "points apply exactly once")
}

func TestClaimRewardErrorTaxonomy(t *testing.T) {
	svc, store, _, adjuster := newBadgeFixture(t, testBadges, 0)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateReward(ctx, &domain.Reward{
		ID: "rw-live", UserID: "u1", Type: domain.RewardBadgeBonus, Points: 10, CreatedAt: now,
	}))
	require.NoError(t, store.CreateReward(ctx, &domain.Reward{
		ID: "rw-stale", UserID: "u1", Type: domain.RewardBadgeBonus, Points: 10,
		CreatedAt: now.Add(-48 * time.Hour), ExpiryDate: now.Add(-time.Hour),
	}))

	_, err := svc.ClaimReward(ctx, "rw-missing", "u1")
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)

	// Someone else's reward looks missing, not forbidden.
	_, err = svc.ClaimReward(ctx, "rw-live", "u2")
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)

	_, err = svc.ClaimReward(ctx, "rw-stale", "u1")
	assert.ErrorIs(t, err, domain.ErrRewardExpired)

	assert.Empty(t, adjuster.calls, "no failed claim reaches the ledger")
}

func TestBadgeRewardCarriesExpiry(t *testing.T) {
	svc, store, metrics, _ := newBadgeFixture(t, testBadges, 24*time.Hour)
	ctx := context.Background()

	metrics.Set("u1", domain.UserMetrics{domain.RequirementLikesReceived: 10})
	_, err := svc.EvaluateUser(ctx, "u1")
	require.NoError(t, err)

	rewards, err := store.UnclaimedRewards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.False(t, rewards[0].ExpiryDate.IsZero())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rewards[0].ExpiryDate, time.Minute)
}

func TestStaticMetricSource(t *testing.T) {
	src := NewStaticMetricSource()
	ctx := context.Background()

	m, err := src.UserMetrics(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, m)

	src.Set("u1", domain.UserMetrics{domain.RequirementBooksRead: 3})
	m, err = src.UserMetrics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m[domain.RequirementBooksRead])

	// Callers get a copy, not the stored map.
	m[domain.RequirementBooksRead] = 99
	again, err := src.UserMetrics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), again[domain.RequirementBooksRead])
}
