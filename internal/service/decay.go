package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

// DecayService shrinks the scores of inactive users. A decay pass never
// raises a score and never touches suspended accounts or scores at or below
// zero. The last_decay_at watermark makes a pass idempotent: re-running it
// within the same inactivity period decays nobody twice.
type DecayService struct {
	ledger ScoreLedger
	index  RankIndex
	ranks  *domain.RankTable
	cfg    config.DecayConfig
	logger *slog.Logger
}

// NewDecayService creates a new decay service
func NewDecayService(ledger ScoreLedger, index RankIndex, ranks *domain.RankTable, cfg config.DecayConfig, logger *slog.Logger) *DecayService {
	return &DecayService{
		ledger: ledger,
		index:  index,
		ranks:  ranks,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes one decay pass and returns the number of users decayed.
// Per-user failures are logged and skipped so one bad record cannot stall the
// sweep.
func (s *DecayService) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.InactivityPeriod)
	decayed := 0

	for {
		batch, err := s.ledger.InactiveUsers(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return decayed, err
		}
		if len(batch) == 0 {
			return decayed, nil
		}

		progressed := false
		for i := range batch {
			if err := ctx.Err(); err != nil {
				return decayed, err
			}
			ok, err := s.decayOne(ctx, &batch[i])
			if err != nil {
				s.logger.Error("decay failed for user", "user_id", batch[i].UserID, "error", err)
				continue
			}
			if ok {
				decayed++
				progressed = true
			}
		}
		// Every failure in a batch would re-select the same users; stop
		// instead of spinning.
		if !progressed {
			return decayed, nil
		}
	}
}

// decayOne applies the decay formula to a single record. A lost optimistic
// race means the user just became active again, so the decay is skipped.
func (s *DecayService) decayOne(ctx context.Context, score *domain.UserScore) (bool, error) {
	now := time.Now()

	newScore := DecayedScore(score.CurrentScore, s.cfg.DecayFactor)
	score.PreviousScore = score.CurrentScore
	score.CurrentScore = newScore
	score.LastDecayAt = now
	score.RankTier = s.ranks.Classify(newScore)

	if err := s.ledger.UpdateUserScore(ctx, score, ""); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return false, nil
		}
		return false, err
	}

	if err := s.index.Upsert(ctx, score.UserID, score.CurrentScore); err != nil {
		s.logger.Warn("realtime index sync failed after decay", "user_id", score.UserID, "error", err)
	}
	return true, nil
}

// DecayedScore returns max(0, round(score * (1 - factor))).
func DecayedScore(score int64, factor float64) int64 {
	decayed := int64(math.Round(float64(score) * (1 - factor)))
	if decayed < 0 {
		return 0
	}
	return decayed
}
