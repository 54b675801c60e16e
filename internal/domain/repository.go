package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: completed checks
// and anomaly-rule configurations.
type Repository interface {
	// Check history
	SaveCheck(ctx context.Context, check *CheckRecord) error
	GetCheck(ctx context.Context, checkID string) (*CheckRecord, error)
	CountChecksByFingerprint(ctx context.Context, fingerprint string, since time.Time) (int64, error)

	// Anomaly rule configurations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
