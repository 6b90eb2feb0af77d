package domain

import "time"

// RequirementType identifies the cumulative metric a badge threshold is
// evaluated against. Metric values come from collaborators outside this
// engine.
type RequirementType string

const (
	RequirementContentCreated   RequirementType = "CONTENT_CREATED"
	RequirementViewsReceived    RequirementType = "VIEWS_RECEIVED"
	RequirementLikesReceived    RequirementType = "LIKES_RECEIVED"
	RequirementCommentsReceived RequirementType = "COMMENTS_RECEIVED"
	RequirementLoginStreak      RequirementType = "LOGIN_STREAK"
	RequirementBooksRead        RequirementType = "BOOKS_READ"
)

// UserMetrics maps requirement types to a user's cumulative values.
type UserMetrics map[RequirementType]int64

// Badge is a static achievement definition.
type Badge struct {
	Code          string          `yaml:"code" json:"code"`
	Name          string          `yaml:"name" json:"name"`
	Description   string          `yaml:"description" json:"description,omitempty"`
	Requirement   RequirementType `yaml:"requirement" json:"requirement"`
	Threshold     int64           `yaml:"threshold" json:"threshold"`
	PointsAwarded int64           `yaml:"points_awarded" json:"points_awarded,omitempty"`
}

// UserBadge records a badge achievement. Created once on first threshold
// crossing, immutable, never revoked.
type UserBadge struct {
	UserID     string    `json:"user_id"`
	BadgeCode  string    `json:"badge_code"`
	AchievedAt time.Time `json:"achieved_at"`
}

// RewardType identifies why a reward was granted.
type RewardType string

const (
	RewardBonusPoints   RewardType = "BONUS_POINTS"
	RewardBadgeBonus    RewardType = "BADGE_BONUS"
	RewardRankPromotion RewardType = "RANK_PROMOTION"
)

// Reward is a claimable benefit. Mutated only by the claim operation.
type Reward struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        RewardType `json:"reward_type"`
	Points      int64      `json:"points"`
	Description string     `json:"description"`
	IsClaimed   bool       `json:"is_claimed"`
	ClaimedAt   time.Time  `json:"claimed_at,omitempty"`
	ExpiryDate  time.Time  `json:"expiry_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether the reward can no longer be claimed at t. A zero
// expiry date means the reward never expires.
func (r *Reward) Expired(t time.Time) bool {
	return !r.ExpiryDate.IsZero() && t.After(r.ExpiryDate)
}
