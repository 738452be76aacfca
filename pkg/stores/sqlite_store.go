package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreatePass creates a new pass record
func (s *SQLiteStore) CreatePass(ctx context.Context, pass *Pass) error {
	if pass.CreatedAt.IsZero() {
		pass.CreatedAt = time.Now().UTC()
	}
	if pass.UpdatedAt.IsZero() {
		pass.UpdatedAt = pass.CreatedAt
	}

	query := `
		INSERT INTO passes (id, catalog_path, status, started_at, completed_at, failure_package, failure_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		pass.ID,
		pass.CatalogPath,
		pass.Status,
		pass.StartedAt,
		pass.CompletedAt,
		pass.FailurePackage,
		pass.FailureMessage,
		pass.CreatedAt,
		pass.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create pass: %w", err)
	}

	return nil
}

// GetPass retrieves a pass by ID
func (s *SQLiteStore) GetPass(ctx context.Context, id string) (*Pass, error) {
	query := `
		SELECT id, catalog_path, status, started_at, completed_at, failure_package, failure_message, created_at, updated_at
		FROM passes
		WHERE id = ?
	`

	pass := &Pass{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&pass.ID,
		&pass.CatalogPath,
		&pass.Status,
		&pass.StartedAt,
		&pass.CompletedAt,
		&pass.FailurePackage,
		&pass.FailureMessage,
		&pass.CreatedAt,
		&pass.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pass not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pass: %w", err)
	}

	return pass, nil
}

// FinishPass records the terminal status of a pass
func (s *SQLiteStore) FinishPass(ctx context.Context, id string, status PassStatus, failurePackage, failureMessage *string) error {
	query := `
		UPDATE passes
		SET status = ?, failure_package = ?, failure_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	var completedAt *time.Time
	if status == PassStatusCompleted || status == PassStatusFailed {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, failurePackage, failureMessage, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish pass: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("pass not found: %s", id)
	}

	return nil
}

// ListPasses lists passes with pagination, most recent first
func (s *SQLiteStore) ListPasses(ctx context.Context, limit, offset int) ([]*Pass, error) {
	query := `
		SELECT id, catalog_path, status, started_at, completed_at, failure_package, failure_message, created_at, updated_at
		FROM passes
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	defer rows.Close()

	passes := []*Pass{}
	for rows.Next() {
		pass := &Pass{}
		err := rows.Scan(
			&pass.ID,
			&pass.CatalogPath,
			&pass.Status,
			&pass.StartedAt,
			&pass.CompletedAt,
			&pass.FailurePackage,
			&pass.FailureMessage,
			&pass.CreatedAt,
			&pass.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		passes = append(passes, pass)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passes: %w", err)
	}

	return passes, nil
}

// DeletePass deletes a pass by ID; its decisions cascade
func (s *SQLiteStore) DeletePass(ctx context.Context, id string) error {
	query := `DELETE FROM passes WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete pass: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("pass not found: %s", id)
	}

	return nil
}

// AppendDecision appends a package decision to a pass
func (s *SQLiteStore) AppendDecision(ctx context.Context, decision *Decision) error {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (pass_id, seq, package, verdict, preference, required, already_built, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		decision.PassID,
		decision.Seq,
		decision.Package,
		decision.Verdict,
		decision.Preference,
		decision.Required,
		decision.AlreadyBuilt,
		decision.Note,
		decision.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get decision ID: %w", err)
	}

	decision.ID = id
	return nil
}

// ListDecisions lists the decisions of a pass in catalog order
func (s *SQLiteStore) ListDecisions(ctx context.Context, passID string) ([]*Decision, error) {
	query := `
		SELECT id, pass_id, seq, package, verdict, preference, required, already_built, note, created_at
		FROM decisions
		WHERE pass_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	decisions := []*Decision{}
	for rows.Next() {
		decision := &Decision{}
		err := rows.Scan(
			&decision.ID,
			&decision.PassID,
			&decision.Seq,
			&decision.Package,
			&decision.Verdict,
			&decision.Preference,
			&decision.Required,
			&decision.AlreadyBuilt,
			&decision.Note,
			&decision.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	return decisions, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
