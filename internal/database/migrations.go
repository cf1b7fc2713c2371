package database

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// schemaMigrations is the ordered schema history of the results store
var schemaMigrations = []Migration{
	{
		Version: 1,
		Name:    "001_create_grid_tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS grid_cells (
				grid_id INTEGER PRIMARY KEY,
				query_lat REAL NOT NULL,
				query_lon REAL NOT NULL,
				geohash TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_grid_cells_geohash ON grid_cells(geohash);
			CREATE INDEX IF NOT EXISTS idx_grid_cells_lat_lon ON grid_cells(query_lat, query_lon);

			CREATE TABLE IF NOT EXISTS grid_temporal_summary (
				grid_id INTEGER PRIMARY KEY,
				first_date TEXT,
				latest_date TEXT,
				n_dates INTEGER NOT NULL DEFAULT 0,
				n_panos INTEGER NOT NULL DEFAULT 0,
				max_gap_months INTEGER,
				span_months INTEGER,
				recency_months INTEGER
			);

			CREATE TABLE IF NOT EXISTS grid_tags (
				grid_id INTEGER PRIMARY KEY,
				grid_highway TEXT NOT NULL DEFAULT '',
				road_type TEXT NOT NULL,
				n_tags INTEGER NOT NULL DEFAULT 0,
				unique_keys INTEGER NOT NULL DEFAULT 0,
				tag_key_list TEXT NOT NULL DEFAULT '[]',
				tag_value_list TEXT NOT NULL DEFAULT '[]'
			);
			CREATE INDEX IF NOT EXISTS idx_grid_tags_road_type ON grid_tags(road_type);
		`,
	},
	{
		Version: 2,
		Name:    "002_create_pipeline_runs",
		SQL: `
			CREATE TABLE IF NOT EXISTS pipeline_runs (
				id TEXT PRIMARY KEY,
				step TEXT NOT NULL,
				status TEXT NOT NULL,
				processed INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
		`,
	},
}

// MigrationManager manages database migrations
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrationManager creates a new migration manager for the built-in schema
func NewMigrationManager(db *sql.DB) *MigrationManager {
	ms := append([]Migration(nil), schemaMigrations...)
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].Version < ms[j].Version
	})
	return &MigrationManager{db: db, migrations: ms}
}

// InitMigrationsTable creates the migrations tracking table
func (m *MigrationManager) InitMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(migration Migration) error {
	return Transaction(m.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		log.Printf("Applied migration %d: %s", migration.Version, migration.Name)
		return nil
	})
}

// RunMigrations runs all pending migrations
func (m *MigrationManager) RunMigrations() error {
	if err := m.InitMigrationsTable(); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.ApplyMigration(migration); err != nil {
			return err
		}
	}

	return nil
}
