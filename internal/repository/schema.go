package repository

// Schema definitions for the TrueMeter database.
// Compatible with both SQLite and PostgreSQL.

const schemaChecks = `
CREATE TABLE IF NOT EXISTS checks (
    id TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    make TEXT NOT NULL,
    model TEXT NOT NULL,
    year INTEGER NOT NULL,
    reported_km INTEGER NOT NULL,
    fuel_type TEXT NOT NULL,
    gearbox TEXT NOT NULL,
    horsepower INTEGER NOT NULL,
    price INTEGER NOT NULL,
    offer_type TEXT NOT NULL,
    fraud_score INTEGER NOT NULL,
    is_suspicious INTEGER NOT NULL,
    expected_km INTEGER NOT NULL,
    reasons TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_fingerprint ON checks(fingerprint, created_at);
CREATE INDEX IF NOT EXISTS idx_checks_suspicious ON checks(is_suspicious);
CREATE INDEX IF NOT EXISTS idx_checks_created ON checks(created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaChecks,
		schemaRuleConfigs,
	}
}
