package config

import (
	"fmt"
	"strings"
)

// dialect holds the few statements that differ between the supported drivers.
type dialect struct {
	name      string
	timestamp string
	// indexIfNotExists is false for MySQL, which has no IF NOT EXISTS for
	// CREATE INDEX; duplicate index errors are tolerated instead.
	indexIfNotExists bool
	upsertSetting    string
	grantRole        string
}

var dialects = map[string]dialect{
	"sqlite": {
		name:             "sqlite",
		timestamp:        "DATETIME",
		indexIfNotExists: true,
		upsertSetting: `INSERT INTO settings (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		grantRole: `INSERT INTO role_mappings (role, principal_type, principal_id, created_at)
			VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
	},
	"postgres": {
		name:             "postgres",
		timestamp:        "TIMESTAMPTZ",
		indexIfNotExists: true,
		upsertSetting: `INSERT INTO settings (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		grantRole: `INSERT INTO role_mappings (role, principal_type, principal_id, created_at)
			VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
	},
	"mysql": {
		name:      "mysql",
		timestamp: "DATETIME(6)",
		upsertSetting: `INSERT INTO settings (name, value) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		grantRole: `INSERT IGNORE INTO role_mappings (role, principal_type, principal_id, created_at)
			VALUES (?, ?, ?, ?)`,
	},
}

func (d dialect) createIndex(name, table, column string) string {
	if d.indexIfNotExists {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, column)
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, column)
}

func (s *Store) migrate() error {
	ts := s.dialect.timestamp
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id VARCHAR(64) PRIMARY KEY,
			ttl BIGINT,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			app_id VARCHAR(255) NOT NULL DEFAULT '',
			created ` + ts + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS roles (
			name VARCHAR(255) PRIMARY KEY,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS role_mappings (
			role VARCHAR(255) NOT NULL,
			principal_type VARCHAR(16) NOT NULL,
			principal_id VARCHAR(255) NOT NULL,
			created_at ` + ts + ` NOT NULL,
			PRIMARY KEY (role, principal_type, principal_id),
			FOREIGN KEY (role) REFERENCES roles(name) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS acl_rules (
			id VARCHAR(36) PRIMARY KEY,
			model VARCHAR(255) NOT NULL,
			property VARCHAR(255) NOT NULL DEFAULT '',
			access_type VARCHAR(16) NOT NULL,
			permission VARCHAR(8) NOT NULL,
			principal_type VARCHAR(16) NOT NULL DEFAULT '',
			principal_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(255) PRIMARY KEY,
			value VARCHAR(4096) NOT NULL
		)`,

		s.dialect.createIndex("idx_access_tokens_user_id", "access_tokens", "user_id"),
		s.dialect.createIndex("idx_role_mappings_principal", "role_mappings", "principal_id"),
		s.dialect.createIndex("idx_acl_rules_model", "acl_rules", "model"),
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// MySQL reports re-created indexes as "Duplicate key name";
			// treat that as a no-op so migrations stay idempotent.
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
