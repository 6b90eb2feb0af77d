package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

// anomalyScanner is the post-write hook into the anomaly detector.
type anomalyScanner interface {
	ScanUser(ctx context.Context, userID string) error
}

// ScoringService owns the write path of the score ledger: activity
// classification, log-first recording, optimistic-concurrency application and
// the side effects of a committed write (realtime index sync, tier-change
// notifications, promotion rewards, anomaly scans).
type ScoringService struct {
	ledger     ScoreLedger
	activities ActivityLog
	index      RankIndex
	badges     BadgeStore
	ranks      *domain.RankTable
	scoring    config.ScoringConfig
	rewards    config.RewardsConfig
	logger     *slog.Logger

	users    UserDirectory
	refs     ReferenceChecker
	notifier Notifier
	anomaly  anomalyScanner
}

// NewScoringService creates a new scoring service
func NewScoringService(
	ledger ScoreLedger,
	activities ActivityLog,
	index RankIndex,
	badges BadgeStore,
	ranks *domain.RankTable,
	scoring config.ScoringConfig,
	rewards config.RewardsConfig,
	logger *slog.Logger,
) *ScoringService {
	return &ScoringService{
		ledger:     ledger,
		activities: activities,
		index:      index,
		badges:     badges,
		ranks:      ranks,
		scoring:    scoring,
		rewards:    rewards,
		logger:     logger,
	}
}

// SetUserDirectory wires the external account lookup.
func (s *ScoringService) SetUserDirectory(d UserDirectory) { s.users = d }

// SetReferenceChecker wires the external content reference validation.
func (s *ScoringService) SetReferenceChecker(c ReferenceChecker) { s.refs = c }

// SetNotifier wires the realtime event fan-out.
func (s *ScoringService) SetNotifier(n Notifier) { s.notifier = n }

// SetAnomalyScanner wires the post-write anomaly scan.
func (s *ScoringService) SetAnomalyScanner(a anomalyScanner) { s.anomaly = a }

// RecordActivity validates, logs and applies one activity event. The log
// append happens before the ledger write; the activity id is the idempotency
// key, so replaying an already-applied event returns the current score with
// Duplicate set instead of double-applying the delta.
func (s *ScoringService) RecordActivity(ctx context.Context, sub domain.ActivitySubmission) (*domain.ScoreUpdate, error) {
	if sub.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if !sub.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidActivityType, sub.Type)
	}

	if s.users != nil {
		exists, err := s.users.Exists(ctx, sub.UserID)
		if err != nil {
			// Fail open: the directory is a collaborator, not an authority
			// over already-observed activity.
			s.logger.Warn("user directory lookup failed", "user_id", sub.UserID, "error", err)
		} else if !exists {
			return nil, domain.ErrUserNotFound
		}
	}
	if s.refs != nil && sub.ReferenceID != "" {
		valid, err := s.refs.Valid(ctx, sub.ReferenceID, sub.ReferenceType)
		if err != nil {
			s.logger.Warn("reference check failed", "reference_id", sub.ReferenceID, "error", err)
		} else if !valid {
			return nil, fmt.Errorf("%w: unknown reference %s", domain.ErrInvalidRequest, sub.ReferenceID)
		}
	}

	activityID := sub.ActivityID
	if activityID == "" {
		activityID = uuid.New().String()
	}

	act := &domain.Activity{
		ID:            activityID,
		UserID:        sub.UserID,
		Type:          sub.Type,
		ScoreDelta:    s.scoring.Weight(sub.Type),
		ReferenceID:   sub.ReferenceID,
		ReferenceType: sub.ReferenceType,
		CreatedAt:     time.Now(),
	}

	outcome, err := s.activities.AppendActivity(ctx, act)
	if err != nil {
		return nil, err
	}
	if outcome == domain.AppendDuplicateApplied {
		score, err := s.ledger.GetUserScore(ctx, act.UserID)
		if err != nil {
			return nil, err
		}
		return &domain.ScoreUpdate{Score: score, Duplicate: true}, nil
	}

	update, err := s.apply(ctx, act, nil)
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, act, update)
	return update, nil
}

// BatchResult is the per-item outcome of a batch submission.
type BatchResult struct {
	Index  int                 `json:"index"`
	Update *domain.ScoreUpdate `json:"update,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// RecordBatch applies submissions independently; one bad item does not stop
// the rest.
func (s *ScoringService) RecordBatch(ctx context.Context, batch domain.BatchActivitySubmission) []BatchResult {
	results := make([]BatchResult, len(batch.Activities))
	for i, sub := range batch.Activities {
		results[i].Index = i
		update, err := s.RecordActivity(ctx, sub)
		if err != nil {
			results[i].Error = err.Error()
			s.logger.Error("batch activity failed", "index", i, "user_id", sub.UserID, "error", err)
			continue
		}
		results[i].Update = update
	}
	return results
}

// AdjustScore applies an administrative delta. Admin deltas bypass the
// suspension freeze and do not reset the inactivity clock.
func (s *ScoringService) AdjustScore(ctx context.Context, userID string, delta int64, reason string) (*domain.ScoreUpdate, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	act := &domain.Activity{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          domain.ActivityAdminAdjustment,
		ScoreDelta:    delta,
		ReferenceID:   reason,
		ReferenceType: "admin_reason",
		CreatedAt:     time.Now(),
	}
	if _, err := s.activities.AppendActivity(ctx, act); err != nil {
		return nil, err
	}

	update, err := s.apply(ctx, act, nil)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, act, update)
	return update, nil
}

// SetSuspended flips the account suspension flag through the same logged,
// versioned write path as every other mutation. Unsuspension resets the
// report count so the next report does not immediately re-suspend.
func (s *ScoringService) SetSuspended(ctx context.Context, userID string, suspended bool, reason string) (*domain.ScoreUpdate, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	actType := domain.ActivityAdminSuspension
	if !suspended {
		actType = domain.ActivityAdminUnsuspension
	}
	act := &domain.Activity{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          actType,
		ScoreDelta:    0,
		ReferenceID:   reason,
		ReferenceType: "admin_reason",
		CreatedAt:     time.Now(),
	}
	if _, err := s.activities.AppendActivity(ctx, act); err != nil {
		return nil, err
	}

	update, err := s.apply(ctx, act, func(score *domain.UserScore) {
		score.AccountSuspended = suspended
		if !suspended {
			score.ReportCount = 0
		}
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, act, update)
	return update, nil
}

// apply commits an activity's delta to the ledger with a bounded
// optimistic-concurrency retry loop. The originating activity is marked
// applied in the same transaction as the ledger write, so a replay after any
// partial failure converges. extra, when set, runs after the delta and report
// bookkeeping on the record about to be written.
func (s *ScoringService) apply(ctx context.Context, act *domain.Activity, extra func(*domain.UserScore)) (*domain.ScoreUpdate, error) {
	for attempt := 0; attempt <= s.scoring.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.scoring.RetryBackoff):
			}
		}

		current, err := s.ledger.GetUserScore(ctx, act.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			fresh := s.newUserScore(act, extra)
			if err := s.ledger.InsertUserScore(ctx, fresh, act.ID); err != nil {
				if errors.Is(err, domain.ErrConcurrentModification) {
					continue
				}
				return nil, err
			}
			return &domain.ScoreUpdate{
				Score:        fresh,
				TierChanged:  fresh.RankTier != s.ranks.Classify(0),
				PreviousTier: s.ranks.Classify(0),
			}, nil
		}
		if err != nil {
			return nil, err
		}

		if current.AccountSuspended && !act.Type.AdminSourced() {
			return nil, domain.ErrAccountSuspended
		}

		previousTier := current.RankTier
		s.mutate(current, act, extra)

		if err := s.ledger.UpdateUserScore(ctx, current, act.ID); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				continue
			}
			return nil, err
		}
		return &domain.ScoreUpdate{
			Score:        current,
			TierChanged:  current.RankTier != previousTier,
			PreviousTier: previousTier,
		}, nil
	}
	return nil, domain.ErrConcurrentModification
}

// newUserScore builds the lazily-initialized ledger record for a user's first
// activity. Scores start at zero.
func (s *ScoringService) newUserScore(act *domain.Activity, extra func(*domain.UserScore)) *domain.UserScore {
	score := &domain.UserScore{
		UserID:         act.UserID,
		LastActivityAt: act.CreatedAt,
	}
	s.mutate(score, act, extra)
	return score
}

// mutate applies an activity's effects to a ledger record in memory.
func (s *ScoringService) mutate(score *domain.UserScore, act *domain.Activity, extra func(*domain.UserScore)) {
	score.PreviousScore = score.CurrentScore
	score.CurrentScore += act.ScoreDelta
	if s.scoring.FloorEnabled && score.CurrentScore < s.scoring.Floor {
		score.CurrentScore = s.scoring.Floor
	}

	if act.Type == domain.ActivityReport {
		score.ReportCount++
		if s.scoring.ReportSuspensionThreshold > 0 && score.ReportCount >= s.scoring.ReportSuspensionThreshold {
			score.AccountSuspended = true
		}
	}
	if !act.Type.AdminSourced() {
		score.LastActivityAt = act.CreatedAt
	}
	if extra != nil {
		extra(score)
	}
	score.RankTier = s.ranks.Classify(score.CurrentScore)
}

// afterCommit runs the side effects of a committed ledger write. All of them
// are best-effort; the ledger is already durable.
func (s *ScoringService) afterCommit(ctx context.Context, act *domain.Activity, update *domain.ScoreUpdate) {
	score := update.Score

	if err := s.index.Upsert(ctx, score.UserID, score.CurrentScore); err != nil {
		s.logger.Warn("realtime index sync failed", "user_id", score.UserID, "error", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyScoreUpdate(score.UserID, score.CurrentScore)
		if update.TierChanged {
			s.notifier.NotifyTierChange(score.UserID, update.PreviousTier, score.RankTier, score.CurrentScore)
		}
	}

	if update.TierChanged && s.ranks.Compare(score.RankTier, update.PreviousTier) > 0 {
		s.issuePromotionReward(ctx, score.UserID, score.RankTier)
	}

	if s.anomaly != nil && !act.Type.AdminSourced() {
		// Detached from the request context; the scanner applies its own
		// timeout.
		go func() {
			if err := s.anomaly.ScanUser(context.Background(), score.UserID); err != nil {
				s.logger.Warn("anomaly scan failed", "user_id", score.UserID, "error", err)
			}
		}()
	}
}

// issuePromotionReward creates the claimable bonus for reaching a higher
// tier, per the configured bonus table.
func (s *ScoringService) issuePromotionReward(ctx context.Context, userID string, tier domain.RankTier) {
	bonus, ok := s.rewards.RankBonuses[tier]
	if !ok || bonus == 0 {
		return
	}

	now := time.Now()
	reward := &domain.Reward{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        domain.RewardRankPromotion,
		Points:      bonus,
		Description: fmt.Sprintf("Promotion to %s", tier),
		CreatedAt:   now,
	}
	if s.rewards.Expiry > 0 {
		reward.ExpiryDate = now.Add(s.rewards.Expiry)
	}
	if err := s.badges.CreateReward(ctx, reward); err != nil {
		s.logger.Warn("promotion reward creation failed", "user_id", userID, "tier", tier, "error", err)
		return
	}
	s.logger.Info("promotion reward issued", "user_id", userID, "tier", tier, "points", bonus)
}

// GetUserScore returns a user's ledger record.
func (s *ScoringService) GetUserScore(ctx context.Context, userID string) (*domain.UserScore, error) {
	return s.ledger.GetUserScore(ctx, userID)
}

// GetTopUsers returns the highest lifetime scores from the ledger.
func (s *ScoringService) GetTopUsers(ctx context.Context, limit int) ([]domain.UserScore, error) {
	return s.ledger.TopUsers(ctx, limit)
}

// GetRealtimeTop returns the top of the realtime rank index.
func (s *ScoringService) GetRealtimeTop(ctx context.Context, n int) ([]domain.RankEntry, error) {
	return s.index.TopN(ctx, n)
}

// GetRealtimeRank returns a user's realtime position. If the user is missing
// from the index but exists in the ledger, the index entry is repaired.
func (s *ScoringService) GetRealtimeRank(ctx context.Context, userID string) (*domain.RankEntry, error) {
	entry, err := s.index.RankOf(ctx, userID)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	score, err := s.ledger.GetUserScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, userID, score.CurrentScore); err != nil {
		return nil, fmt.Errorf("repairing index entry: %w", err)
	}
	return s.index.RankOf(ctx, userID)
}

// RebuildIndex replaces the realtime index with the ledger's current scores.
func (s *ScoringService) RebuildIndex(ctx context.Context) (int, error) {
	scores, err := s.ledger.AllScores(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.index.Rebuild(ctx, scores); err != nil {
		return 0, err
	}
	return len(scores), nil
}
