package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
)

const rankKey = "reputation:realtime"

// RankStore maintains the realtime rank index, a single Redis sorted set
// keyed by user with the current total score. It is a best-effort cache of
// the durable ledger and can be rebuilt at any time.
type RankStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankStore creates a new Redis rank store
func NewRankStore(cfg *config.RedisConfig, logger *slog.Logger) (*RankStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RankStore{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RankStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *RankStore) Client() *redis.Client {
	return s.client
}

// Upsert sets a user's score in the rank index.
func (s *RankStore) Upsert(ctx context.Context, userID string, score int64) error {
	err := s.client.ZAdd(ctx, rankKey, redis.Z{
		Score:  float64(score),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("upserting rank score: %w", err)
	}
	return nil
}

// Remove drops a user from the rank index.
func (s *RankStore) Remove(ctx context.Context, userID string) error {
	if err := s.client.ZRem(ctx, rankKey, userID).Err(); err != nil {
		return fmt.Errorf("removing rank entry: %w", err)
	}
	return nil
}

// TopN returns the top n users by score, descending, rank 1-indexed.
func (s *RankStore) TopN(ctx context.Context, n int) ([]domain.RankEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, rankKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.RankEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankEntry{
			Rank:   int64(i + 1),
			UserID: result.Member.(string),
			Score:  int64(result.Score),
		}
	}
	return entries, nil
}

// RankOf returns a user's position and score in the rank index.
func (s *RankStore) RankOf(ctx context.Context, userID string) (*domain.RankEntry, error) {
	// Use pipeline to get both rank and score
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, rankKey, userID)
	scoreCmd := pipe.ZScore(ctx, rankKey, userID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.RankEntry{
		Rank:   rank + 1, // Convert 0-indexed to 1-indexed
		UserID: userID,
		Score:  int64(score),
	}, nil
}

// Count returns the number of users in the rank index.
func (s *RankStore) Count(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, rankKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting rank count: %w", err)
	}
	return count, nil
}

// Rebuild replaces the rank index with the given scores. The new set is
// written under a staging key and renamed over the live one so readers never
// observe a partially built index.
func (s *RankStore) Rebuild(ctx context.Context, scores map[string]int64) error {
	staging := rankKey + ":rebuild"

	pipe := s.client.Pipeline()
	pipe.Del(ctx, staging)
	for userID, score := range scores {
		pipe.ZAdd(ctx, staging, redis.Z{
			Score:  float64(score),
			Member: userID,
		})
	}
	if len(scores) > 0 {
		pipe.Rename(ctx, staging, rankKey)
	} else {
		pipe.Del(ctx, rankKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding rank index: %w", err)
	}
	return nil
}
