package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		sql: `
	CREATE TABLE IF NOT EXISTS registration (
		id TEXT PRIMARY KEY,
		relationship_with_credentia TEXT NOT NULL,
		selected_package TEXT NOT NULL DEFAULT '',
		organization_name TEXT NOT NULL,
		website TEXT NOT NULL DEFAULT '',
		street TEXT NOT NULL,
		street2 TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL,
		state TEXT NOT NULL,
		zip TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL,
		phone_area TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		alt_phone_area TEXT NOT NULL DEFAULT '',
		alt_phone_number TEXT NOT NULL DEFAULT '',
		company_description TEXT NOT NULL DEFAULT '',
		primary_contact TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		dietary_restrictions TEXT NOT NULL DEFAULT '[]',
		ada_requirements TEXT NOT NULL DEFAULT '[]',
		travel_sponsorship TEXT NOT NULL DEFAULT '[]',
		preferred_airport TEXT NOT NULL DEFAULT '',
		consents_accepted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_registration_created_at ON registration(created_at);

	CREATE TABLE IF NOT EXISTS admin_access_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		action_type TEXT NOT NULL,
		success_flag INTEGER NOT NULL,
		additional_details TEXT NOT NULL DEFAULT '{}',
		client_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_admin_access_log_timestamp ON admin_access_log(timestamp);
	`,
	},
	{
		version: 2,
		name:    "client key-value store",
		sql: `
	CREATE TABLE IF NOT EXISTS client_kv (
		client_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (client_id, key)
	);
	`,
	},
	{
		version: 3,
		name:    "audit action index",
		sql:     `CREATE INDEX IF NOT EXISTS idx_admin_access_log_action ON admin_access_log(action_type, timestamp);`,
	},
}

// LatestSchemaVersion returns the version reached after all migrations.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the applied schema version (0 for a fresh database).
// PRE: db is a valid database connection
// POST: returns the highest recorded version
func SchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB brings the schema up to LatestSchemaVersion.
// Each migration runs in its own transaction together with its version row.
// PRE: db is a valid database connection
// POST: schema_version holds every applied version, foreign keys enabled
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
		slog.Info("schema_migrated", "version", m.version, "name", m.name)
	}
	return nil
}
