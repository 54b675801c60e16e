// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCheck stores a completed fraud check.
func (r *SQLRepository) SaveCheck(ctx context.Context, check *domain.CheckRecord) error {
	if check.ID == "" {
		return fmt.Errorf("%w: check ID is required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(check.Result.Reasons)

	suspicious := 0
	if check.Result.IsSuspicious {
		suspicious = 1
	}

	query := `
		INSERT INTO checks (
			id, fingerprint, make, model, year, reported_km,
			fuel_type, gearbox, horsepower, price, offer_type,
			fraud_score, is_suspicious, expected_km, reasons, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		check.ID, check.Fingerprint,
		check.Car.Make, check.Car.Model, check.Car.Year, check.Car.ReportedKm,
		check.Car.FuelType, check.Car.Gearbox, check.Car.Horsepower,
		check.Car.Price, check.Car.OfferType,
		check.Result.FraudScore, suspicious, check.Result.ExpectedKm,
		string(reasons), check.CreatedAt,
	)
	return err
}

// GetCheck retrieves a fraud check by ID.
func (r *SQLRepository) GetCheck(ctx context.Context, checkID string) (*domain.CheckRecord, error) {
	if checkID == "" {
		return nil, fmt.Errorf("%w: check ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, fingerprint, make, model, year, reported_km,
			   fuel_type, gearbox, horsepower, price, offer_type,
			   fraud_score, is_suspicious, expected_km, reasons, created_at
		FROM checks
		WHERE id = ?
	`

	var check domain.CheckRecord
	var suspicious int
	var reasons string

	err := r.db.QueryRowContext(ctx, r.rebind(query), checkID).Scan(
		&check.ID, &check.Fingerprint,
		&check.Car.Make, &check.Car.Model, &check.Car.Year, &check.Car.ReportedKm,
		&check.Car.FuelType, &check.Car.Gearbox, &check.Car.Horsepower,
		&check.Car.Price, &check.Car.OfferType,
		&check.Result.FraudScore, &suspicious, &check.Result.ExpectedKm,
		&reasons, &check.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	check.Result.IsSuspicious = suspicious == 1
	if err := json.Unmarshal([]byte(reasons), &check.Result.Reasons); err != nil {
		return nil, fmt.Errorf("failed to parse check reasons: %w", err)
	}
	if check.Result.Reasons == nil {
		check.Result.Reasons = []string{}
	}

	return &check, nil
}

// CountChecksByFingerprint counts checks of the same vehicle since a point
// in time. Backs the recheck counters when no shared cache is configured.
func (r *SQLRepository) CountChecksByFingerprint(ctx context.Context, fingerprint string, since time.Time) (int64, error) {
	if fingerprint == "" {
		return 0, fmt.Errorf("%w: fingerprint is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM checks
		WHERE fingerprint = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), fingerprint, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// SaveRuleConfig stores an anomaly rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
