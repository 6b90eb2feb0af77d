package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/reputation-engine/internal/domain"
)

// AdminService is the manual override and reporting surface. Overrides go
// through the same logged, versioned ledger path as organic activity, so
// every admin action leaves an ADMIN_* record in the activity log.
type AdminService struct {
	scoring    *ScoringService
	anomaly    *AnomalyService
	ledger     ScoreLedger
	activities ActivityLog
	logger     *slog.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(scoring *ScoringService, anomaly *AnomalyService, ledger ScoreLedger, activities ActivityLog, logger *slog.Logger) *AdminService {
	return &AdminService{
		scoring:    scoring,
		anomaly:    anomaly,
		ledger:     ledger,
		activities: activities,
		logger:     logger,
	}
}

// AdjustScore applies a manual score delta.
func (s *AdminService) AdjustScore(ctx context.Context, userID string, delta int64, reason string) (*domain.ScoreUpdate, error) {
	update, err := s.scoring.AdjustScore(ctx, userID, delta, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin score adjustment", "user_id", userID, "delta", delta, "reason", reason)
	return update, nil
}

// Suspend freezes a user's automatic score changes.
func (s *AdminService) Suspend(ctx context.Context, userID, reason string) (*domain.ScoreUpdate, error) {
	update, err := s.scoring.SetSuspended(ctx, userID, true, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account suspended", "user_id", userID, "reason", reason)
	return update, nil
}

// Unsuspend lifts a suspension and resets the report count.
func (s *AdminService) Unsuspend(ctx context.Context, userID string) (*domain.ScoreUpdate, error) {
	update, err := s.scoring.SetSuspended(ctx, userID, false, "")
	if err != nil {
		return nil, err
	}
	s.logger.Info("account unsuspended", "user_id", userID)
	return update, nil
}

// SuspiciousUsers returns users with a recent score jump above threshold.
func (s *AdminService) SuspiciousUsers(ctx context.Context, threshold int64) ([]domain.UserScore, error) {
	return s.anomaly.FindSuspiciousUsers(ctx, threshold)
}

// AbnormalPatterns returns same-type activity bursts in [start,end].
func (s *AdminService) AbnormalPatterns(ctx context.Context, start, end time.Time, threshold int64) ([]domain.ActivityPattern, error) {
	return s.anomaly.FindAbnormalPatterns(ctx, start, end, threshold)
}

// RankDistribution returns how many users hold each tier.
func (s *AdminService) RankDistribution(ctx context.Context) (map[domain.RankTier]int64, error) {
	return s.ledger.RankDistribution(ctx)
}

// ActivityStatistics returns activity counts per type in [start,end].
func (s *AdminService) ActivityStatistics(ctx context.Context, start, end time.Time) (map[domain.ActivityType]int64, error) {
	return s.activities.TypeStatistics(ctx, start, end)
}
