package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

// AnomalyService detects suspicious scoring behavior. Detection only sets the
// suspicious flag for admin review; it never suspends an account or reverses
// a score.
type AnomalyService struct {
	ledger     ScoreLedger
	activities ActivityLog
	cfg        config.AnomalyConfig
	logger     *slog.Logger
}

// NewAnomalyService creates a new anomaly detection service
func NewAnomalyService(ledger ScoreLedger, activities ActivityLog, cfg config.AnomalyConfig, logger *slog.Logger) *AnomalyService {
	return &AnomalyService{
		ledger:     ledger,
		activities: activities,
		cfg:        cfg,
		logger:     logger,
	}
}

// ScanUser checks one user's recent activity against the configured
// thresholds and flags the account when either trips: net score gain within
// the window above the score threshold, or more same-type activities than the
// count threshold.
func (s *AnomalyService) ScanUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	since := time.Now().Add(-s.cfg.Window)

	suspicious := false
	delta, err := s.activities.UserDeltaSince(ctx, userID, since)
	if err != nil {
		return err
	}
	if delta > s.cfg.ScoreThreshold {
		suspicious = true
	}

	if !suspicious {
		counts, err := s.activities.UserTypeCountsSince(ctx, userID, since)
		if err != nil {
			return err
		}
		for _, n := range counts {
			if n > s.cfg.CountThreshold {
				suspicious = true
				break
			}
		}
	}

	if !suspicious {
		return nil
	}
	return s.flag(ctx, userID)
}

// flag sets the suspicious bit. Lost optimistic races are retried once; the
// flag is sticky so a concurrent writer keeping it set is also fine.
func (s *AnomalyService) flag(ctx context.Context, userID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		score, err := s.ledger.GetUserScore(ctx, userID)
		if err != nil {
			return err
		}
		if score.SuspiciousActivity {
			return nil
		}
		score.SuspiciousActivity = true
		err = s.ledger.UpdateUserScore(ctx, score, "")
		if err == nil {
			s.logger.Info("user flagged as suspicious", "user_id", userID)
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
	}
	return domain.ErrConcurrentModification
}

// FindSuspiciousUsers returns users whose last score change magnitude exceeds
// the threshold, an independent review signal from the flag-based scan.
func (s *AnomalyService) FindSuspiciousUsers(ctx context.Context, threshold int64) ([]domain.UserScore, error) {
	if threshold <= 0 {
		threshold = s.cfg.ScoreThreshold
	}
	return s.ledger.UsersWithScoreJump(ctx, threshold)
}

// FindAbnormalPatterns returns same-type activity bursts within [start,end]
// above the count threshold.
func (s *AnomalyService) FindAbnormalPatterns(ctx context.Context, start, end time.Time, threshold int64) ([]domain.ActivityPattern, error) {
	if threshold <= 0 {
		threshold = s.cfg.CountThreshold
	}
	return s.activities.AbnormalPatterns(ctx, start, end, threshold)
}
