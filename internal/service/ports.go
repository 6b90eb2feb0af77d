package service

import (
	"context"
	"time"

	"github.com/reputation-engine/internal/domain"
)

// ScoreLedger is the durable per-user score store with optimistic
// concurrency. Implemented by the Postgres repository.
type ScoreLedger interface {
	GetUserScore(ctx context.Context, userID string) (*domain.UserScore, error)
	InsertUserScore(ctx context.Context, s *domain.UserScore, activityID string) error
	UpdateUserScore(ctx context.Context, s *domain.UserScore, activityID string) error
	TopUsers(ctx context.Context, limit int) ([]domain.UserScore, error)
	InactiveUsers(ctx context.Context, cutoff time.Time, limit int) ([]domain.UserScore, error)
	UsersWithScoreJump(ctx context.Context, threshold int64) ([]domain.UserScore, error)
	AllScores(ctx context.Context) (map[string]int64, error)
	AllUserIDs(ctx context.Context) ([]string, error)
	RankDistribution(ctx context.Context) (map[domain.RankTier]int64, error)
}

// ActivityLog is the append-only activity record store. Implemented by the
// Postgres repository.
type ActivityLog interface {
	AppendActivity(ctx context.Context, a *domain.Activity) (domain.AppendOutcome, error)
	UserDeltaSince(ctx context.Context, userID string, since time.Time) (int64, error)
	UserTypeCountsSince(ctx context.Context, userID string, since time.Time) (map[domain.ActivityType]int64, error)
	AbnormalPatterns(ctx context.Context, start, end time.Time, threshold int64) ([]domain.ActivityPattern, error)
	WindowAggregates(ctx context.Context, start, end time.Time) ([]domain.WindowAggregate, error)
	TypeStatistics(ctx context.Context, start, end time.Time) (map[domain.ActivityType]int64, error)
}

// RankIndex is the realtime total-score ranking. Implemented by the Redis
// rank store. Writes are best-effort; the ledger is authoritative.
type RankIndex interface {
	Upsert(ctx context.Context, userID string, score int64) error
	TopN(ctx context.Context, n int) ([]domain.RankEntry, error)
	RankOf(ctx context.Context, userID string) (*domain.RankEntry, error)
	Rebuild(ctx context.Context, scores map[string]int64) error
	Count(ctx context.Context) (int64, error)
}

// LeaderboardStore holds materialized windowed leaderboard snapshots.
// Implemented by the Postgres repository.
type LeaderboardStore interface {
	ReplaceSnapshot(ctx context.Context, windowType domain.WindowType, start, end time.Time, entries []domain.LeaderboardEntry) error
	TopEntries(ctx context.Context, windowType domain.WindowType, start time.Time, limit int) ([]domain.LeaderboardEntry, error)
	UserEntry(ctx context.Context, windowType domain.WindowType, start time.Time, userID string) (*domain.LeaderboardEntry, error)
}

// BadgeStore holds badge achievements and claimable rewards. Implemented by
// the Postgres repository.
type BadgeStore interface {
	AwardBadge(ctx context.Context, userID, badgeCode string, achievedAt time.Time) (bool, error)
	UserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error)
	CreateReward(ctx context.Context, rw *domain.Reward) error
	GetReward(ctx context.Context, rewardID string) (*domain.Reward, error)
	UnclaimedRewards(ctx context.Context, userID string) ([]domain.Reward, error)
	MarkRewardClaimed(ctx context.Context, rewardID string, claimedAt time.Time) error
}

// MetricSource supplies the cumulative per-user metrics badge thresholds are
// evaluated against. The metrics live outside this engine.
type MetricSource interface {
	UserMetrics(ctx context.Context, userID string) (domain.UserMetrics, error)
}

// UserDirectory answers whether a user id refers to a real account. The
// account system is an external collaborator; main wires a permissive default.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// ReferenceChecker validates activity reference ids against the content
// system, another external collaborator.
type ReferenceChecker interface {
	Valid(ctx context.Context, referenceID, referenceType string) (bool, error)
}

// Notifier receives score and badge events for fan-out to connected clients.
// Implemented by the websocket hub.
type Notifier interface {
	NotifyTierChange(userID string, previous, current domain.RankTier, score int64)
	NotifyScoreUpdate(userID string, score int64)
	NotifyBadge(userID, badgeCode string)
}
