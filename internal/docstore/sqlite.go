package docstore

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

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) sprout.db in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sprout.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that have not been run yet.
func (s *SQLiteStore) migrate() error {
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

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *SQLiteStore) AppliedMigrations() ([]int, error) {
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

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (User, error) {
	u := User{Username: username}
	err := s.db.QueryRowContext(ctx,
		`SELECT password, fullname FROM users WHERE username = ?`, username,
	).Scan(&u.Password, &u.Fullname)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, question, answer, parent_id, created_at
		FROM history WHERE username = ? ORDER BY position ASC`, username,
	)
	if err != nil {
		return User{}, err
	}
	defer rows.Close()

	u.History = []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &kind, &e.Question, &e.Answer, &e.ParentID, &createdAt); err != nil {
			return User{}, err
		}
		e.Kind = Kind(kind)
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return User{}, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		u.History = append(u.History, e)
	}
	return u, rows.Err()
}

func (s *SQLiteStore) PutUser(ctx context.Context, u User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, password, fullname, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET password = excluded.password, fullname = excluded.fullname`,
		u.Username, u.Password, u.Fullname, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	if err := replaceHistory(ctx, tx, u.Username, u.History); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutHistory(ctx context.Context, username string, history []HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := replaceHistory(ctx, tx, username, history); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceHistory(ctx context.Context, tx *sql.Tx, username string, history []HistoryEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE username = ?`, username); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	for i, e := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (username, position, id, kind, question, answer, parent_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			username, i, e.ID, string(e.Kind), e.Question, e.Answer, e.ParentID,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("saving history entry %d: %w", i, err)
		}
	}
	return nil
}
