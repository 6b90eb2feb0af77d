package domain

import "time"

// UserScore is the durable per-user ledger record. One row per user, created
// lazily on first activity and never deleted. Version backs the optimistic
// concurrency check on every read-modify-write.
type UserScore struct {
	UserID             string    `json:"user_id"`
	CurrentScore       int64     `json:"current_score"`
	PreviousScore      int64     `json:"previous_score"`
	RankTier           RankTier  `json:"rank_tier"`
	SuspiciousActivity bool      `json:"suspicious_activity"`
	ReportCount        int64     `json:"report_count"`
	AccountSuspended   bool      `json:"account_suspended"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	LastDecayAt        time.Time `json:"last_decay_at,omitempty"`
	Version            int64     `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ScoreUpdate is the outcome of a committed ledger mutation.
type ScoreUpdate struct {
	Score        *UserScore `json:"score"`
	TierChanged  bool       `json:"tier_changed"`
	PreviousTier RankTier   `json:"previous_tier,omitempty"`
	Duplicate    bool       `json:"duplicate,omitempty"`
}

// RankEntry is a position in the realtime rank index.
type RankEntry struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}
