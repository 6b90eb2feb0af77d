package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reputation-engine/internal/domain"
)

// AwardBadge records a badge achievement. The (user, badge) primary key makes
// the award idempotent: a repeat evaluation inserts nothing and returns false.
func (r *Repository) AwardBadge(ctx context.Context, userID, badgeCode string, achievedAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_code, achieved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_code) DO NOTHING
	`, userID, badgeCode, achievedAt)
	if err != nil {
		return false, fmt.Errorf("awarding badge: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UserBadges returns a user's achieved badges, most recent first.
func (r *Repository) UserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, badge_code, achieved_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY achieved_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user badges: %w", err)
	}
	defer rows.Close()

	var badges []domain.UserBadge
	for rows.Next() {
		var b domain.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeCode, &b.AchievedAt); err != nil {
			return nil, fmt.Errorf("scanning user badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// CreateReward stores a new unclaimed reward.
func (r *Repository) CreateReward(ctx context.Context, rw *domain.Reward) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rewards (id, user_id, reward_type, points, description, is_claimed, expiry_date, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	`, rw.ID, rw.UserID, string(rw.Type), rw.Points, rw.Description, nullableTime(rw.ExpiryDate), rw.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating reward: %w", err)
	}
	return nil
}

// GetReward retrieves one reward by id.
func (r *Repository) GetReward(ctx context.Context, rewardID string) (*domain.Reward, error) {
	var rw domain.Reward
	var rewardType string
	var claimedAt, expiryDate *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, reward_type, points, description, is_claimed, claimed_at, expiry_date, created_at
		FROM rewards
		WHERE id = $1
	`, rewardID).Scan(&rw.ID, &rw.UserID, &rewardType, &rw.Points, &rw.Description, &rw.IsClaimed, &claimedAt, &expiryDate, &rw.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRewardNotFound
		}
		return nil, fmt.Errorf("getting reward: %w", err)
	}
	rw.Type = domain.RewardType(rewardType)
	if claimedAt != nil {
		rw.ClaimedAt = *claimedAt
	}
	if expiryDate != nil {
		rw.ExpiryDate = *expiryDate
	}
	return &rw, nil
}

// UnclaimedRewards returns a user's unclaimed rewards, newest first.
func (r *Repository) UnclaimedRewards(ctx context.Context, userID string) ([]domain.Reward, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, reward_type, points, description, is_claimed, claimed_at, expiry_date, created_at
		FROM rewards
		WHERE user_id = $1 AND NOT is_claimed
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying unclaimed rewards: %w", err)
	}
	defer rows.Close()

	var rewards []domain.Reward
	for rows.Next() {
		var rw domain.Reward
		var rewardType string
		var claimedAt, expiryDate *time.Time
		if err := rows.Scan(&rw.ID, &rw.UserID, &rewardType, &rw.Points, &rw.Description, &rw.IsClaimed, &claimedAt, &expiryDate, &rw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reward: %w", err)
		}
		rw.Type = domain.RewardType(rewardType)
		if claimedAt != nil {
			rw.ClaimedAt = *claimedAt
		}
		if expiryDate != nil {
			rw.ExpiryDate = *expiryDate
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

// MarkRewardClaimed flips a reward to claimed. The NOT is_claimed guard makes
// concurrent claims lose cleanly with ErrRewardAlreadyClaimed.
func (r *Repository) MarkRewardClaimed(ctx context.Context, rewardID string, claimedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE rewards
		SET is_claimed = TRUE, claimed_at = $1
		WHERE id = $2 AND NOT is_claimed
	`, claimedAt, rewardID)
	if err != nil {
		return fmt.Errorf("claiming reward: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRewardAlreadyClaimed
	}
	return nil
}
