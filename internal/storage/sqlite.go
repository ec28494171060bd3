package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the persistent state of semagent: cached schemas, query logs and
// the training vectors used for retrieval.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) semagent.db in dataDir and runs pending migrations.
// ":memory:" opens a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "semagent.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for packages that keep their own tables in the same
// database (the retrieval vector store).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}
		if err := s.applyMigration(version, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, name string) error {
	var applied int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
		return fmt.Errorf("checking migration %d: %w", version, err)
	}
	if applied > 0 {
		return nil
	}

	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Schema cache ---

// SchemaCache is a persistent schema cache shared by every agent that opens
// the same data directory.
type SchemaCache struct {
	store *Store
}

// SchemaCache returns the cache view of s.
func (s *Store) SchemaCache() *SchemaCache {
	return &SchemaCache{store: s}
}

// Get returns the cached schema stored under key.
func (c *SchemaCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.store.db.QueryRowContext(ctx, "SELECT value FROM schema_cache WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading schema cache: %w", err)
	}
	return value, true, nil
}

// Set upserts value under key. Concurrent writers: the last one wins.
func (c *SchemaCache) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO schema_cache (key, value, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("writing schema cache: %w", err)
	}
	return nil
}

// Delete drops the entry under key. Missing keys are not an error.
func (c *SchemaCache) Delete(ctx context.Context, key string) error {
	if _, err := c.store.db.ExecContext(ctx, "DELETE FROM schema_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting schema cache entry: %w", err)
	}
	return nil
}

// --- Query logs ---

// logTimeLayout is fixed width so created_at sorts correctly as text.
const logTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const queryLogColumns = `id, created_at, dataset, query_json, sql_text, row_count, duration_ms, status, error`

// SaveQueryLog inserts l. A zero CreatedAt is set to now.
func (s *Store) SaveQueryLog(ctx context.Context, l QueryLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO query_logs (`+queryLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CreatedAt.UTC().Format(logTimeLayout), l.Dataset, l.QueryJSON, l.SQL,
		l.RowCount, l.DurationMs, l.Status, l.Error,
	)
	if err != nil {
		return fmt.Errorf("saving query log %s: %w", l.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueryLog(r rowScanner) (QueryLog, error) {
	var l QueryLog
	var createdAt string
	if err := r.Scan(&l.ID, &createdAt, &l.Dataset, &l.QueryJSON, &l.SQL, &l.RowCount, &l.DurationMs, &l.Status, &l.Error); err != nil {
		return QueryLog{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return QueryLog{}, fmt.Errorf("parsing created_at: %w", err)
	}
	l.CreatedAt = t
	return l, nil
}

// GetQueryLog returns the log with the given id.
func (s *Store) GetQueryLog(ctx context.Context, id string) (QueryLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryLogColumns+` FROM query_logs WHERE id = ?`, id)
	l, err := scanQueryLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return QueryLog{}, ErrNotFound
	}
	return l, err
}

// RecentQueryLogs returns up to limit logs, newest first.
func (s *Store) RecentQueryLogs(ctx context.Context, limit int) ([]QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+queryLogColumns+` FROM query_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []QueryLog
	for rows.Next() {
		l, err := scanQueryLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
