package config

import (
	"fmt"
	"os"
	"time"

	"github.com/reputation-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Ranks       RanksConfig       `yaml:"ranks"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Decay       DecayConfig       `yaml:"decay"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Badges      BadgesConfig      `yaml:"badges"`
	Rewards     RewardsConfig     `yaml:"rewards"`
	Sync        SyncConfig        `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// ScoringConfig holds activity weights and ledger write behavior.
type ScoringConfig struct {
	// Weights overrides the built-in per-activity-type score weights.
	Weights map[domain.ActivityType]int64 `yaml:"weights"`
	// FloorEnabled clamps scores at Floor. Disabled by default; negative
	// scores are permitted since the REPORT weight is negative.
	FloorEnabled bool  `yaml:"floor_enabled"`
	Floor        int64 `yaml:"floor"`
	// ReportSuspensionThreshold suspends an account once its report count
	// reaches the threshold. Zero disables automatic suspension.
	ReportSuspensionThreshold int64 `yaml:"report_suspension_threshold"`
	// MaxRetries bounds the optimistic-concurrency retry loop per write.
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Weight returns the effective score weight for an activity type.
func (c *ScoringConfig) Weight(t domain.ActivityType) int64 {
	if w, ok := c.Weights[t]; ok {
		return w
	}
	return t.DefaultWeight()
}

// RanksConfig holds the rank tier boundaries.
type RanksConfig struct {
	Boundaries []domain.TierBoundary `yaml:"boundaries"`
}

// AnomalyConfig holds suspicious-activity detection thresholds.
type AnomalyConfig struct {
	// ScoreThreshold flags a user whose net score delta within Window
	// exceeds it.
	ScoreThreshold int64 `yaml:"score_threshold"`
	// CountThreshold flags a user with more than this many activities of a
	// single type within Window.
	CountThreshold int64         `yaml:"count_threshold"`
	Window         time.Duration `yaml:"window"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
}

// DecayConfig holds inactivity decay parameters.
type DecayConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	InactivityPeriod time.Duration `yaml:"inactivity_period"`
	DecayFactor      float64       `yaml:"decay_factor"`
	BatchSize        int           `yaml:"batch_size"`
}

// LeaderboardConfig holds leaderboard materialization and query limits.
type LeaderboardConfig struct {
	DefaultLimit        int           `yaml:"default_limit"`
	MaxLimit            int           `yaml:"max_limit"`
	MaterializeInterval time.Duration `yaml:"materialize_interval"`
	MaterializeEnabled  bool          `yaml:"materialize_enabled"`
}

// BadgesConfig holds the badge definition table and sweep behavior.
type BadgesConfig struct {
	Definitions   []domain.Badge `yaml:"definitions"`
	SweepEnabled  bool           `yaml:"sweep_enabled"`
	SweepInterval time.Duration  `yaml:"sweep_interval"`
}

// RewardsConfig holds reward issuance parameters.
type RewardsConfig struct {
	// RankBonuses maps a reached tier to the bonus points granted on
	// promotion into it.
	RankBonuses map[domain.RankTier]int64 `yaml:"rank_bonuses"`
	// Expiry is how long an issued reward stays claimable. Zero means
	// rewards never expire.
	Expiry time.Duration `yaml:"expiry"`
}

// SyncConfig holds the realtime index rebuild worker configuration.
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Enabled   bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "activity-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "scoring-engine"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Scoring defaults
	if c.Scoring.ReportSuspensionThreshold == 0 {
		c.Scoring.ReportSuspensionThreshold = 5
	}
	if c.Scoring.MaxRetries == 0 {
		c.Scoring.MaxRetries = 5
	}
	if c.Scoring.RetryBackoff == 0 {
		c.Scoring.RetryBackoff = 20 * time.Millisecond
	}

	// Rank defaults
	if len(c.Ranks.Boundaries) == 0 {
		c.Ranks.Boundaries = domain.DefaultTierBoundaries()
	}

	// Anomaly defaults
	if c.Anomaly.ScoreThreshold == 0 {
		c.Anomaly.ScoreThreshold = 100
	}
	if c.Anomaly.CountThreshold == 0 {
		c.Anomaly.CountThreshold = 50
	}
	if c.Anomaly.Window == 0 {
		c.Anomaly.Window = 24 * time.Hour
	}
	if c.Anomaly.ScanTimeout == 0 {
		c.Anomaly.ScanTimeout = 5 * time.Second
	}

	// Decay defaults
	if c.Decay.Interval == 0 {
		c.Decay.Interval = 24 * time.Hour
	}
	if c.Decay.InactivityPeriod == 0 {
		c.Decay.InactivityPeriod = 30 * 24 * time.Hour
	}
	if c.Decay.DecayFactor == 0 {
		c.Decay.DecayFactor = 0.1
	}
	if c.Decay.BatchSize == 0 {
		c.Decay.BatchSize = 500
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 100
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 1000
	}
	if c.Leaderboard.MaterializeInterval == 0 {
		c.Leaderboard.MaterializeInterval = 15 * time.Minute
	}

	// Badge defaults
	if len(c.Badges.Definitions) == 0 {
		c.Badges.Definitions = DefaultBadgeDefinitions()
	}
	if c.Badges.SweepInterval == 0 {
		c.Badges.SweepInterval = 1 * time.Hour
	}

	// Reward defaults
	if len(c.Rewards.RankBonuses) == 0 {
		c.Rewards.RankBonuses = map[domain.RankTier]int64{
			domain.RankSilver:   100,
			domain.RankGold:     200,
			domain.RankPlatinum: 300,
			domain.RankDiamond:  500,
		}
	}
	if c.Rewards.Expiry == 0 {
		c.Rewards.Expiry = 30 * 24 * time.Hour
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 1000
	}
}

// DefaultBadgeDefinitions returns the built-in badge threshold table.
func DefaultBadgeDefinitions() []domain.Badge {
	return []domain.Badge{
		{Code: "FIRST_STEPS", Name: "First Steps", Description: "Created your first piece of content", Requirement: domain.RequirementContentCreated, Threshold: 1, PointsAwarded: 10},
		{Code: "PROLIFIC_CREATOR", Name: "Prolific Creator", Description: "Created 50 pieces of content", Requirement: domain.RequirementContentCreated, Threshold: 50, PointsAwarded: 100},
		{Code: "CROWD_FAVORITE", Name: "Crowd Favorite", Description: "Received 100 likes", Requirement: domain.RequirementLikesReceived, Threshold: 100, PointsAwarded: 50},
		{Code: "CONVERSATION_STARTER", Name: "Conversation Starter", Description: "Received 50 comments", Requirement: domain.RequirementCommentsReceived, Threshold: 50, PointsAwarded: 50},
		{Code: "WIDELY_READ", Name: "Widely Read", Description: "Received 1000 views", Requirement: domain.RequirementViewsReceived, Threshold: 1000, PointsAwarded: 50},
		{Code: "DAILY_READER", Name: "Daily Reader", Description: "Logged in 7 days in a row", Requirement: domain.RequirementLoginStreak, Threshold: 7, PointsAwarded: 20},
		{Code: "BOOKWORM", Name: "Bookworm", Description: "Finished 10 books", Requirement: domain.RequirementBooksRead, Threshold: 10, PointsAwarded: 100},
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	cfg.Decay.Enabled = true
	cfg.Leaderboard.MaterializeEnabled = true
	cfg.Badges.SweepEnabled = true
	return cfg
}
