package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

// scoreAdjuster applies reward points to the ledger. Satisfied by
// ScoringService.
type scoreAdjuster interface {
	AdjustScore(ctx context.Context, userID string, delta int64, reason string) (*domain.ScoreUpdate, error)
}

// BadgeService evaluates badge thresholds and manages claimable rewards.
// Awards are first-crossing and idempotent; badges are never revoked. Points
// reach the ledger only through the claim operation, applied as an
// admin-sourced delta so suspended users can still collect earned rewards.
type BadgeService struct {
	store       BadgeStore
	metrics     MetricSource
	adjuster    scoreAdjuster
	definitions []domain.Badge
	expiry      time.Duration
	notifier    Notifier
	logger      *slog.Logger
}

// NewBadgeService creates a new badge service
func NewBadgeService(store BadgeStore, metrics MetricSource, adjuster scoreAdjuster, badges config.BadgesConfig, rewards config.RewardsConfig, logger *slog.Logger) *BadgeService {
	return &BadgeService{
		store:       store,
		metrics:     metrics,
		adjuster:    adjuster,
		definitions: badges.Definitions,
		expiry:      rewards.Expiry,
		logger:      logger,
	}
}

// SetNotifier wires the realtime event fan-out.
func (s *BadgeService) SetNotifier(n Notifier) { s.notifier = n }

// Definitions returns the badge definition table.
func (s *BadgeService) Definitions() []domain.Badge {
	return s.definitions
}

// EvaluateUser checks every badge threshold against the user's current
// metrics and awards newly crossed ones. Returns the badges awarded by this
// call; replaying the evaluation awards nothing.
func (s *BadgeService) EvaluateUser(ctx context.Context, userID string) ([]domain.Badge, error) {
	metrics, err := s.metrics.UserMetrics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user metrics: %w", err)
	}

	now := time.Now()
	var awarded []domain.Badge
	for _, badge := range s.definitions {
		if metrics[badge.Requirement] < badge.Threshold {
			continue
		}
		inserted, err := s.store.AwardBadge(ctx, userID, badge.Code, now)
		if err != nil {
			return awarded, err
		}
		if !inserted {
			continue
		}
		awarded = append(awarded, badge)
		s.logger.Info("badge awarded", "user_id", userID, "badge", badge.Code)

		if badge.PointsAwarded > 0 {
			s.issueBadgeReward(ctx, userID, badge, now)
		}
		if s.notifier != nil {
			s.notifier.NotifyBadge(userID, badge.Code)
		}
	}
	return awarded, nil
}

func (s *BadgeService) issueBadgeReward(ctx context.Context, userID string, badge domain.Badge, now time.Time) {
	reward := &domain.Reward{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        domain.RewardBadgeBonus,
		Points:      badge.PointsAwarded,
		Description: fmt.Sprintf("Badge earned: %s", badge.Name),
		CreatedAt:   now,
	}
	if s.expiry > 0 {
		reward.ExpiryDate = now.Add(s.expiry)
	}
	if err := s.store.CreateReward(ctx, reward); err != nil {
		s.logger.Warn("badge reward creation failed", "user_id", userID, "badge", badge.Code, "error", err)
	}
}

// UserBadges returns a user's achieved badges.
func (s *BadgeService) UserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	return s.store.UserBadges(ctx, userID)
}

// UnclaimedRewards returns a user's claimable rewards.
func (s *BadgeService) UnclaimedRewards(ctx context.Context, userID string) ([]domain.Reward, error) {
	return s.store.UnclaimedRewards(ctx, userID)
}

// ClaimReward marks a reward claimed and applies its points. The claimed flip
// is the race arbiter: of two concurrent claims exactly one wins, so the
// points apply once.
func (s *BadgeService) ClaimReward(ctx context.Context, rewardID, userID string) (*domain.Reward, error) {
	reward, err := s.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	// A reward id belonging to someone else is indistinguishable from a
	// missing one.
	if reward.UserID != userID {
		return nil, domain.ErrRewardNotFound
	}
	if reward.IsClaimed {
		return nil, domain.ErrRewardAlreadyClaimed
	}
	now := time.Now()
	if reward.Expired(now) {
		return nil, domain.ErrRewardExpired
	}

	if err := s.store.MarkRewardClaimed(ctx, rewardID, now); err != nil {
		return nil, err
	}
	reward.IsClaimed = true
	reward.ClaimedAt = now

	if reward.Points != 0 {
		if _, err := s.adjuster.AdjustScore(ctx, userID, reward.Points, fmt.Sprintf("reward claim %s", rewardID)); err != nil {
			// The claim is durable; the points will need an admin retry.
			s.logger.Error("applying claimed reward points failed", "reward_id", rewardID, "user_id", userID, "error", err)
			return nil, err
		}
	}

	s.logger.Info("reward claimed", "reward_id", rewardID, "user_id", userID, "points", reward.Points)
	return reward, nil
}

// StaticMetricSource is a map-backed MetricSource. It stands in for the
// external metric collaborators in the default wiring and in tests.
type StaticMetricSource struct {
	mu      sync.RWMutex
	metrics map[string]domain.UserMetrics
}

// NewStaticMetricSource creates an empty static metric source.
func NewStaticMetricSource() *StaticMetricSource {
	return &StaticMetricSource{metrics: make(map[string]domain.UserMetrics)}
}

// Set replaces a user's metrics.
func (s *StaticMetricSource) Set(userID string, m domain.UserMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[userID] = m
}

// UserMetrics returns the stored metrics, empty when the user is unknown.
func (s *StaticMetricSource) UserMetrics(_ context.Context, userID string) (domain.UserMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[userID]
	if !ok {
		return domain.UserMetrics{}, nil
	}
	out := make(domain.UserMetrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}
