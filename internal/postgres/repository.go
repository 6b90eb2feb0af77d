package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputation-engine/internal/config"
)

// Repository provides PostgreSQL-based data access for the scoring engine's
// durable stores: the score ledger, the activity log, leaderboard snapshots
// and badge/reward records.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_scores (
			user_id VARCHAR(64) PRIMARY KEY,
			current_score BIGINT NOT NULL DEFAULT 0,
			previous_score BIGINT NOT NULL DEFAULT 0,
			rank_tier VARCHAR(20) NOT NULL,
			suspicious_activity BOOLEAN NOT NULL DEFAULT FALSE,
			report_count BIGINT NOT NULL DEFAULT 0,
			account_suspended BOOLEAN NOT NULL DEFAULT FALSE,
			last_activity_at TIMESTAMPTZ NOT NULL,
			last_decay_at TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			activity_type VARCHAR(32) NOT NULL,
			score_delta BIGINT NOT NULL,
			reference_id VARCHAR(64),
			reference_type VARCHAR(64),
			applied BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
			id BIGSERIAL PRIMARY KEY,
			window_type VARCHAR(10) NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			snapshot_id BIGINT NOT NULL REFERENCES leaderboard_snapshots(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			rank INT NOT NULL,
			score BIGINT NOT NULL,
			like_count BIGINT NOT NULL DEFAULT 0,
			save_count BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id VARCHAR(64) NOT NULL,
			badge_code VARCHAR(64) NOT NULL,
			achieved_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, badge_code)
		)`,
		`CREATE TABLE IF NOT EXISTS rewards (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			reward_type VARCHAR(32) NOT NULL,
			points BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_at TIMESTAMPTZ,
			expiry_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_scores_score ON user_scores(current_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_user_scores_last_activity ON user_scores(last_activity_at)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user_created ON activities(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_window ON leaderboard_snapshots(window_type, window_start, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_rank ON leaderboard_entries(snapshot_id, rank)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_user_claimed ON rewards(user_id, is_claimed)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}
