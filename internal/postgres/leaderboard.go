package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reputation-engine/internal/domain"
)

// ReplaceSnapshot atomically publishes a new leaderboard snapshot for a
// window: the new snapshot and its entries commit together, and older
// snapshots for the same window are retired in the same transaction. Readers
// always see either the previous complete snapshot or the new one.
func (r *Repository) ReplaceSnapshot(ctx context.Context, windowType domain.WindowType, start, end time.Time, entries []domain.LeaderboardEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var snapshotID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO leaderboard_snapshots (window_type, window_start, window_end, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, string(windowType), start, end, time.Now()).Scan(&snapshotID)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	insertEntry := `
		INSERT INTO leaderboard_entries (snapshot_id, user_id, rank, score, like_count, save_count, comment_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, e := range entries {
		batch.Queue(insertEntry, snapshotID, e.UserID, e.Rank, e.Score, e.LikeCount, e.SaveCount, e.CommentCount)
	}
	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting snapshot entries: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing snapshot batch: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM leaderboard_snapshots
		WHERE window_type = $1 AND window_start = $2 AND id <> $3
	`, string(windowType), start, snapshotID)
	if err != nil {
		return fmt.Errorf("retiring old snapshots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// latestSnapshotID finds the most recent snapshot for a window.
func (r *Repository) latestSnapshotID(ctx context.Context, windowType domain.WindowType, start time.Time) (int64, time.Time, error) {
	var id int64
	var end time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, window_end
		FROM leaderboard_snapshots
		WHERE window_type = $1 AND window_start = $2
		ORDER BY id DESC
		LIMIT 1
	`, string(windowType), start).Scan(&id, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, domain.ErrSnapshotNotFound
		}
		return 0, time.Time{}, fmt.Errorf("finding snapshot: %w", err)
	}
	return id, end, nil
}

// TopEntries returns the first limit entries of the latest snapshot for the
// given window.
func (r *Repository) TopEntries(ctx context.Context, windowType domain.WindowType, start time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	snapshotID, end, err := r.latestSnapshotID(ctx, windowType, start)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, rank, score, like_count, save_count, comment_count
		FROM leaderboard_entries
		WHERE snapshot_id = $1
		ORDER BY rank ASC
		LIMIT $2
	`, snapshotID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		e := domain.LeaderboardEntry{WindowType: windowType, WindowStart: start, WindowEnd: end}
		if err := rows.Scan(&e.UserID, &e.Rank, &e.Score, &e.LikeCount, &e.SaveCount, &e.CommentCount); err != nil {
			return nil, fmt.Errorf("scanning snapshot entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UserEntry returns one user's row in the latest snapshot for the given
// window. ErrSnapshotNotFound means no snapshot has been materialized;
// ErrUserNotFound means the snapshot exists but the user had no activity in
// the window.
func (r *Repository) UserEntry(ctx context.Context, windowType domain.WindowType, start time.Time, userID string) (*domain.LeaderboardEntry, error) {
	snapshotID, end, err := r.latestSnapshotID(ctx, windowType, start)
	if err != nil {
		return nil, err
	}

	e := domain.LeaderboardEntry{WindowType: windowType, WindowStart: start, WindowEnd: end}
	err = r.pool.QueryRow(ctx, `
		SELECT user_id, rank, score, like_count, save_count, comment_count
		FROM leaderboard_entries
		WHERE snapshot_id = $1 AND user_id = $2
	`, snapshotID, userID).Scan(&e.UserID, &e.Rank, &e.Score, &e.LikeCount, &e.SaveCount, &e.CommentCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user entry: %w", err)
	}
	return &e, nil
}
