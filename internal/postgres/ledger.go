package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/reputation-engine/internal/domain"
)

const uniqueViolation = "23505"

// GetUserScore retrieves a user's ledger record.
func (r *Repository) GetUserScore(ctx context.Context, userID string) (*domain.UserScore, error) {
	query := `
		SELECT user_id, current_score, previous_score, rank_tier, suspicious_activity,
		       report_count, account_suspended, last_activity_at, last_decay_at,
		       version, created_at, updated_at
		FROM user_scores
		WHERE user_id = $1
	`
	var s domain.UserScore
	var lastDecay *time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.CurrentScore,
		&s.PreviousScore,
		&s.RankTier,
		&s.SuspiciousActivity,
		&s.ReportCount,
		&s.AccountSuspended,
		&s.LastActivityAt,
		&lastDecay,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user score: %w", err)
	}
	if lastDecay != nil {
		s.LastDecayAt = *lastDecay
	}
	return &s, nil
}

// InsertUserScore creates the lazily-initialized ledger row for a user's
// first activity. When activityID is non-empty the originating activity is
// marked applied in the same transaction. A concurrent insert for the same
// user surfaces as ErrConcurrentModification so the caller can re-read and
// retry as an update.
func (r *Repository) InsertUserScore(ctx context.Context, s *domain.UserScore, activityID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO user_scores (user_id, current_score, previous_score, rank_tier,
			suspicious_activity, report_count, account_suspended, last_activity_at,
			last_decay_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10)
	`
	now := time.Now()
	_, err = tx.Exec(ctx, query,
		s.UserID,
		s.CurrentScore,
		s.PreviousScore,
		string(s.RankTier),
		s.SuspiciousActivity,
		s.ReportCount,
		s.AccountSuspended,
		s.LastActivityAt,
		nullableTime(s.LastDecayAt),
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrConcurrentModification
		}
		return fmt.Errorf("inserting user score: %w", err)
	}

	if activityID != "" {
		if err := markApplied(ctx, tx, activityID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing insert transaction: %w", err)
	}

	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// UpdateUserScore commits a read-modify-write against the version the record
// was loaded with. A version mismatch means another writer got there first
// and yields ErrConcurrentModification. When activityID is non-empty the
// originating activity is marked applied in the same transaction.
func (r *Repository) UpdateUserScore(ctx context.Context, s *domain.UserScore, activityID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE user_scores
		SET current_score = $1, previous_score = $2, rank_tier = $3,
		    suspicious_activity = $4, report_count = $5, account_suspended = $6,
		    last_activity_at = $7, last_decay_at = $8, version = version + 1,
		    updated_at = $9
		WHERE user_id = $10 AND version = $11
	`
	now := time.Now()
	result, err := tx.Exec(ctx, query,
		s.CurrentScore,
		s.PreviousScore,
		string(s.RankTier),
		s.SuspiciousActivity,
		s.ReportCount,
		s.AccountSuspended,
		s.LastActivityAt,
		nullableTime(s.LastDecayAt),
		now,
		s.UserID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("updating user score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}

	if activityID != "" {
		if err := markApplied(ctx, tx, activityID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing update transaction: %w", err)
	}

	s.Version++
	s.UpdatedAt = now
	return nil
}

func markApplied(ctx context.Context, tx pgx.Tx, activityID string) error {
	_, err := tx.Exec(ctx, `UPDATE activities SET applied = TRUE WHERE id = $1`, activityID)
	if err != nil {
		return fmt.Errorf("marking activity applied: %w", err)
	}
	return nil
}

// TopUsers returns the highest-scored ledger records.
func (r *Repository) TopUsers(ctx context.Context, limit int) ([]domain.UserScore, error) {
	query := `
		SELECT user_id, current_score, previous_score, rank_tier, suspicious_activity,
		       report_count, account_suspended, last_activity_at, last_decay_at,
		       version, created_at, updated_at
		FROM user_scores
		ORDER BY current_score DESC, user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top users: %w", err)
	}
	defer rows.Close()
	return scanUserScores(rows)
}

// InactiveUsers returns ledger records eligible for decay: inactive since
// cutoff, not suspended, positive score, and not already decayed since the
// cutoff (the decay watermark).
func (r *Repository) InactiveUsers(ctx context.Context, cutoff time.Time, limit int) ([]domain.UserScore, error) {
	query := `
		SELECT user_id, current_score, previous_score, rank_tier, suspicious_activity,
		       report_count, account_suspended, last_activity_at, last_decay_at,
		       version, created_at, updated_at
		FROM user_scores
		WHERE last_activity_at < $1
		  AND NOT account_suspended
		  AND current_score > 0
		  AND (last_decay_at IS NULL OR last_decay_at < $1)
		ORDER BY last_activity_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying inactive users: %w", err)
	}
	defer rows.Close()
	return scanUserScores(rows)
}

// UsersWithScoreJump returns users whose most recent score change magnitude
// exceeds threshold, for admin review.
func (r *Repository) UsersWithScoreJump(ctx context.Context, threshold int64) ([]domain.UserScore, error) {
	query := `
		SELECT user_id, current_score, previous_score, rank_tier, suspicious_activity,
		       report_count, account_suspended, last_activity_at, last_decay_at,
		       version, created_at, updated_at
		FROM user_scores
		WHERE ABS(current_score - previous_score) > $1
		ORDER BY ABS(current_score - previous_score) DESC
	`
	rows, err := r.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying score jumps: %w", err)
	}
	defer rows.Close()
	return scanUserScores(rows)
}

// AllScores returns every user's current score, for realtime index rebuilds.
func (r *Repository) AllScores(ctx context.Context) (map[string]int64, error) {
	query := `SELECT user_id, current_score FROM user_scores`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying all scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var userID string
		var score int64
		if err := rows.Scan(&userID, &score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores[userID] = score
	}
	return scores, rows.Err()
}

// AllUserIDs returns every ledger user id, for batch sweeps.
func (r *Repository) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_scores ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RankDistribution returns the number of users in each rank tier.
func (r *Repository) RankDistribution(ctx context.Context) (map[domain.RankTier]int64, error) {
	query := `SELECT rank_tier, COUNT(*) FROM user_scores GROUP BY rank_tier`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rank distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[domain.RankTier]int64)
	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("scanning rank distribution: %w", err)
		}
		dist[domain.RankTier(tier)] = count
	}
	return dist, rows.Err()
}

func scanUserScores(rows pgx.Rows) ([]domain.UserScore, error) {
	var scores []domain.UserScore
	for rows.Next() {
		var s domain.UserScore
		var lastDecay *time.Time
		err := rows.Scan(
			&s.UserID,
			&s.CurrentScore,
			&s.PreviousScore,
			&s.RankTier,
			&s.SuspiciousActivity,
			&s.ReportCount,
			&s.AccountSuspended,
			&s.LastActivityAt,
			&lastDecay,
			&s.Version,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning user score: %w", err)
		}
		if lastDecay != nil {
			s.LastDecayAt = *lastDecay
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
