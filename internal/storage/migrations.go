package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Up          string    `json:"up"`
	Down        string    `json:"down"`
	AppliedAt   time.Time `json:"applied_at"`
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db         *sql.DB
	dialect    dialect
	migrations []Migration
}

// MigrationRunner provides migration execution capabilities
type MigrationRunner interface {
	Initialize(ctx context.Context) error
	GetCurrentVersion(ctx context.Context) (int, error)
	ApplyMigration(ctx context.Context, migration Migration) error
	RollbackMigration(ctx context.Context, version int) error
	ListAppliedMigrations(ctx context.Context) ([]Migration, error)
	MigrateToVersion(ctx context.Context, migrations []Migration, targetVersion int) error
}

// Ensure MigrationManager implements MigrationRunner
var _ MigrationRunner = (*MigrationManager)(nil)

func newMigrationManager(db *sql.DB, d dialect) *MigrationManager {
	return &MigrationManager{
		db:         db,
		dialect:    d,
		migrations: schemaMigrations(d),
	}
}

// Migrations returns the schema migrations known to this manager, ordered by version
func (mm *MigrationManager) Migrations() []Migration {
	out := make([]Migration, len(mm.migrations))
	copy(out, mm.migrations)
	return out
}

// LatestVersion is the highest known schema version
func (mm *MigrationManager) LatestVersion() int {
	if len(mm.migrations) == 0 {
		return 0
	}
	return mm.migrations[len(mm.migrations)-1].Version
}

// Initialize sets up the migration tracking table
func (mm *MigrationManager) Initialize(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, mm.dialect.timestampType)

	if _, err := mm.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// HasMigrationTable checks if the migration tracking table exists
func (mm *MigrationManager) HasMigrationTable(ctx context.Context) (bool, error) {
	var count int
	err := mm.db.QueryRowContext(ctx, mm.dialect.rebind(mm.dialect.tableExists), "schema_migrations").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration table: %w", err)
	}
	return count > 0, nil
}

// GetCurrentVersion returns the current database schema version
func (mm *MigrationManager) GetCurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := mm.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// IsMigrationApplied checks if a specific migration version has been applied
func (mm *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := mm.db.QueryRowContext(ctx, mm.dialect.rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// ApplyMigration applies a single migration
func (mm *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	if migration.Version <= 0 {
		return fmt.Errorf("migration version must be positive, got %d", migration.Version)
	}
	if migration.Name == "" {
		return fmt.Errorf("migration name cannot be empty")
	}
	if migration.Up == "" {
		return fmt.Errorf("migration Up script cannot be empty")
	}

	applied, err := mm.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("migration version %d already applied", migration.Version)
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := execScript(ctx, tx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	_, err = tx.ExecContext(ctx,
		mm.dialect.rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		migration.Version, migration.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}

// RollbackMigration runs the Down script of an applied migration and forgets it
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version int) error {
	applied, err := mm.IsMigrationApplied(ctx, version)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("migration version %d not applied", version)
	}

	var down string
	for _, m := range mm.migrations {
		if m.Version == version {
			down = m.Down
			break
		}
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start rollback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if down != "" {
		if err := execScript(ctx, tx, down); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, mm.dialect.rebind(`DELETE FROM schema_migrations WHERE version = ?`), version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}

// ListAppliedMigrations returns all applied migrations
func (mm *MigrationManager) ListAppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := mm.db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var migrations []Migration
	for rows.Next() {
		var migration Migration
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, migration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migrations: %w", err)
	}
	return migrations, nil
}

// MigrateToVersion migrates database to a specific version
func (mm *MigrationManager) MigrateToVersion(ctx context.Context, migrations []Migration, targetVersion int) error {
	currentVersion, err := mm.GetCurrentVersion(ctx)
	if err != nil {
		return err
	}

	if targetVersion > currentVersion {
		for _, migration := range migrations {
			if migration.Version <= currentVersion {
				continue
			}
			if migration.Version > targetVersion {
				break
			}
			if err := mm.ApplyMigration(ctx, migration); err != nil {
				return err
			}
		}
	} else if targetVersion < currentVersion {
		for i := currentVersion; i > targetVersion; i-- {
			if err := mm.RollbackMigration(ctx, i); err != nil {
				return err
			}
		}
	}

	return nil
}

// MigrateUp applies every pending schema migration
func (mm *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := mm.Initialize(ctx); err != nil {
		return err
	}
	return mm.MigrateToVersion(ctx, mm.migrations, mm.LatestVersion())
}

// execScript runs each ;-separated statement in turn
func execScript(ctx context.Context, tx *sql.Tx, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// schemaMigrations is the versioned schema, rendered for one dialect
func schemaMigrations(d dialect) []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "create_interactions",
			Description: "interactions keyed uniquely by platform and interaction id",
			Up: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS interactions (
					%s,
					content_item_id BIGINT NOT NULL,
					platform TEXT NOT NULL,
					interaction_type TEXT NOT NULL,
					interaction_id TEXT NOT NULL,
					interaction_data TEXT NOT NULL,
					occurred_at %[2]s NOT NULL,
					local_comment_id BIGINT NOT NULL DEFAULT 0,
					created_at %[2]s NOT NULL,
					updated_at %[2]s NOT NULL,
					UNIQUE(platform, interaction_id)
				);
				CREATE INDEX IF NOT EXISTS idx_interactions_item_time ON interactions(content_item_id, occurred_at);
				CREATE INDEX IF NOT EXISTS idx_interactions_item_filter ON interactions(content_item_id, platform, interaction_type)`,
				d.idColumn, d.timestampType),
			Down: `DROP INDEX IF EXISTS idx_interactions_item_filter;
				DROP INDEX IF EXISTS idx_interactions_item_time;
				DROP TABLE IF EXISTS interactions`,
		},
		{
			Version:     2,
			Name:        "create_sync_states",
			Description: "latest orchestration pass summary",
			Up: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS sync_states (
					state_key TEXT PRIMARY KEY,
					completed_at %s NOT NULL,
					summary TEXT NOT NULL
				)`, d.timestampType),
			Down: `DROP TABLE IF EXISTS sync_states`,
		},
		{
			Version:     3,
			Name:        "create_sync_locks",
			Description: "single-flight lock shared by every process using this database",
			Up: `
				CREATE TABLE IF NOT EXISTS sync_locks (
					lock_key TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					acquired_at BIGINT NOT NULL
				)`,
			Down: `DROP TABLE IF EXISTS sync_locks`,
		},
	}
}
