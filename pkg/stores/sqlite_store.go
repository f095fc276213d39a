package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/up/pkg/merge"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists preferences in SQLite. It implements defaults.Store.
type SQLiteStore struct {
	db     *sql.DB
	config Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{config: cfg}, nil
}

// Open creates, initializes and migrates a store at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.config.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
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

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Read returns the value stored under domain and key.
func (s *SQLiteStore) Read(ctx context.Context, domain, key string) (merge.Value, bool, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE domain = ? AND key = ?`,
		domain, key,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return merge.Value{}, false, nil
	}
	if err != nil {
		return merge.Value{}, false, fmt.Errorf("failed to read preference: %w", err)
	}

	v, err := merge.Decode([]byte(encoded))
	if err != nil {
		return merge.Value{}, false, fmt.Errorf("failed to decode preference %s %s: %w", domain, key, err)
	}
	return v, true, nil
}

// Write stores value under domain and key, replacing any previous value.
func (s *SQLiteStore) Write(ctx context.Context, domain, key string, value merge.Value) error {
	encoded, err := merge.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences (domain, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		domain, key, string(encoded), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}
	return nil
}

// Delete removes a stored value. Deleting a missing value is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, domain, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM preferences WHERE domain = ? AND key = ?`,
		domain, key,
	); err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	return nil
}

// ListDomain returns every preference in domain ordered by key.
func (s *SQLiteStore) ListDomain(ctx context.Context, domain string) ([]*Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, key, value, updated_at FROM preferences WHERE domain = ? ORDER BY key`,
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*Preference
	for rows.Next() {
		var (
			pref    Preference
			encoded string
		)
		if err := rows.Scan(&pref.Domain, &pref.Key, &encoded, &pref.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		if pref.Value, err = merge.Decode([]byte(encoded)); err != nil {
			return nil, fmt.Errorf("failed to decode preference %s %s: %w", pref.Domain, pref.Key, err)
		}
		prefs = append(prefs, &pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}
	return prefs, nil
}

// Domains returns all domains with at least one stored value.
func (s *SQLiteStore) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT domain FROM preferences ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domains: %w", err)
	}
	return domains, nil
}
