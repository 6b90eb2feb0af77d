package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

// LeaderboardService builds and serves windowed leaderboards. Rankings are
// computed from window-scoped activity deltas, not lifetime scores, so each
// window starts from a clean slate. Builds are deterministic: descending
// window score, ascending user id on ties.
type LeaderboardService struct {
	activities ActivityLog
	store      LeaderboardStore
	cfg        config.LeaderboardConfig
	logger     *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(activities ActivityLog, store LeaderboardStore, cfg config.LeaderboardConfig, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		activities: activities,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

// ClampLimit normalizes a requested page size against the configured bounds.
func (s *LeaderboardService) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// build computes the full ranking for a window from the activity log.
func (s *LeaderboardService) build(ctx context.Context, windowType domain.WindowType, start, end time.Time) ([]domain.LeaderboardEntry, error) {
	aggs, err := s.activities.WindowAggregates(ctx, start, end)
	if err != nil {
		return nil, err
	}

	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Score != aggs[j].Score {
			return aggs[i].Score > aggs[j].Score
		}
		return aggs[i].UserID < aggs[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, len(aggs))
	for i, a := range aggs {
		entries[i] = domain.LeaderboardEntry{
			WindowType:   windowType,
			WindowStart:  start,
			WindowEnd:    end,
			UserID:       a.UserID,
			Rank:         i + 1,
			Score:        a.Score,
			LikeCount:    a.LikeCount,
			SaveCount:    a.SaveCount,
			CommentCount: a.CommentCount,
		}
	}
	return entries, nil
}

// Materialize builds and persists the snapshot for the window containing at.
// Returns the number of ranked users.
func (s *LeaderboardService) Materialize(ctx context.Context, windowType domain.WindowType, at time.Time) (int, error) {
	start, end := windowType.Range(at)
	entries, err := s.build(ctx, windowType, start, end)
	if err != nil {
		return 0, err
	}
	if err := s.store.ReplaceSnapshot(ctx, windowType, start, end, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// MaterializeAll rebuilds the current window of every leaderboard type.
func (s *LeaderboardService) MaterializeAll(ctx context.Context) error {
	now := time.Now()
	for _, w := range domain.WindowTypes() {
		n, err := s.Materialize(ctx, w, now)
		if err != nil {
			return err
		}
		s.logger.Info("leaderboard materialized", "window_type", w, "entries", n)
	}
	return nil
}

// GetTop serves the leading entries of the window containing at. A missing
// snapshot falls back to an on-demand build, which is also persisted so the
// next read is served from storage.
func (s *LeaderboardService) GetTop(ctx context.Context, windowType domain.WindowType, at time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	if !windowType.Valid() {
		return nil, domain.ErrInvalidRequest
	}
	limit = s.ClampLimit(limit)
	start, end := windowType.Range(at)

	entries, err := s.store.TopEntries(ctx, windowType, start, limit)
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, err
	}

	computed, err := s.build(ctx, windowType, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceSnapshot(ctx, windowType, start, end, computed); err != nil {
		s.logger.Warn("on-demand snapshot persist failed", "window_type", windowType, "error", err)
	}
	if len(computed) > limit {
		computed = computed[:limit]
	}
	return computed, nil
}

// GetUserRanking returns one user's row in the window containing at, with the
// same on-demand fallback as GetTop. ErrUserNotFound means the user had no
// activity in the window.
func (s *LeaderboardService) GetUserRanking(ctx context.Context, windowType domain.WindowType, at time.Time, userID string) (*domain.LeaderboardEntry, error) {
	if !windowType.Valid() {
		return nil, domain.ErrInvalidRequest
	}
	start, end := windowType.Range(at)

	entry, err := s.store.UserEntry(ctx, windowType, start, userID)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, err
	}

	computed, err := s.build(ctx, windowType, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceSnapshot(ctx, windowType, start, end, computed); err != nil {
		s.logger.Warn("on-demand snapshot persist failed", "window_type", windowType, "error", err)
	}
	for i := range computed {
		if computed[i].UserID == userID {
			return &computed[i], nil
		}
	}
	return nil, domain.ErrUserNotFound
}
