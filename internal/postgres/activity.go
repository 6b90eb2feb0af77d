package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reputation-engine/internal/domain"
)

// AppendActivity appends an immutable activity record. The id acts as an
// idempotency key: replays are detected instead of inserted twice, and the
// outcome tells the caller whether the score delta still needs applying.
func (r *Repository) AppendActivity(ctx context.Context, a *domain.Activity) (domain.AppendOutcome, error) {
	query := `
		INSERT INTO activities (id, user_id, activity_type, score_delta, reference_id, reference_type, applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		string(a.Type),
		a.ScoreDelta,
		a.ReferenceID,
		a.ReferenceType,
		a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("appending activity: %w", err)
	}
	if result.RowsAffected() > 0 {
		return domain.AppendInserted, nil
	}

	var applied bool
	err = r.pool.QueryRow(ctx, `SELECT applied FROM activities WHERE id = $1`, a.ID).Scan(&applied)
	if err != nil {
		return 0, fmt.Errorf("checking duplicate activity: %w", err)
	}
	if applied {
		return domain.AppendDuplicateApplied, nil
	}
	return domain.AppendDuplicatePending, nil
}

// UserDeltaSince returns the net score delta of a user's activity since the
// given time.
func (r *Repository) UserDeltaSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(score_delta), 0)
		FROM activities
		WHERE user_id = $1 AND created_at >= $2
	`
	var delta int64
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&delta); err != nil {
		return 0, fmt.Errorf("summing user deltas: %w", err)
	}
	return delta, nil
}

// UserTypeCountsSince returns per-type activity counts for a user since the
// given time.
func (r *Repository) UserTypeCountsSince(ctx context.Context, userID string, since time.Time) (map[domain.ActivityType]int64, error) {
	query := `
		SELECT activity_type, COUNT(*)
		FROM activities
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY activity_type
	`
	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("counting user activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ActivityType]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning activity count: %w", err)
		}
		counts[domain.ActivityType(t)] = n
	}
	return counts, rows.Err()
}

// AbnormalPatterns groups activity by (user, type) within [start,end] and
// returns groups whose count exceeds the threshold.
func (r *Repository) AbnormalPatterns(ctx context.Context, start, end time.Time, threshold int64) ([]domain.ActivityPattern, error) {
	query := `
		SELECT user_id, activity_type, COUNT(*), MIN(created_at), MAX(created_at)
		FROM activities
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY user_id, activity_type
		HAVING COUNT(*) > $3
		ORDER BY COUNT(*) DESC
	`
	rows, err := r.pool.Query(ctx, query, start, end, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying abnormal patterns: %w", err)
	}
	defer rows.Close()

	var patterns []domain.ActivityPattern
	for rows.Next() {
		var p domain.ActivityPattern
		var t string
		if err := rows.Scan(&p.UserID, &t, &p.Count, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		p.Type = domain.ActivityType(t)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// WindowAggregates returns per-user activity totals within [start,end), the
// input for leaderboard materialization.
func (r *Repository) WindowAggregates(ctx context.Context, start, end time.Time) ([]domain.WindowAggregate, error) {
	query := `
		SELECT user_id,
		       COALESCE(SUM(score_delta), 0),
		       COUNT(*) FILTER (WHERE activity_type = 'LIKE'),
		       COUNT(*) FILTER (WHERE activity_type = 'SAVE'),
		       COUNT(*) FILTER (WHERE activity_type = 'COMMENT')
		FROM activities
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY user_id
	`
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying window aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []domain.WindowAggregate
	for rows.Next() {
		var a domain.WindowAggregate
		if err := rows.Scan(&a.UserID, &a.Score, &a.LikeCount, &a.SaveCount, &a.CommentCount); err != nil {
			return nil, fmt.Errorf("scanning window aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// TypeStatistics returns activity counts per type within [start,end].
func (r *Repository) TypeStatistics(ctx context.Context, start, end time.Time) (map[domain.ActivityType]int64, error) {
	query := `
		SELECT activity_type, COUNT(*)
		FROM activities
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY activity_type
	`
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying type statistics: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.ActivityType]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning type statistic: %w", err)
		}
		stats[domain.ActivityType(t)] = n
	}
	return stats, rows.Err()
}

// GetActivity retrieves one activity record by id.
func (r *Repository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	query := `
		SELECT id, user_id, activity_type, score_delta, reference_id, reference_type, created_at
		FROM activities
		WHERE id = $1
	`
	var a domain.Activity
	var t string
	var refID, refType *string
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.UserID, &t, &a.ScoreDelta, &refID, &refType, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidRequest
		}
		return nil, fmt.Errorf("getting activity: %w", err)
	}
	a.Type = domain.ActivityType(t)
	if refID != nil {
		a.ReferenceID = *refID
	}
	if refType != nil {
		a.ReferenceType = *refType
	}
	return &a, nil
}
