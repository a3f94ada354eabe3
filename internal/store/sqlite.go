package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/digest/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Each user's partition is one JSON document row, rewritten inside a
// transaction on every update.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
}

// connPragmas run once on the single pooled connection.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// NewSQLiteStore opens (or creates) the database at dbPath. Call Migrate
// before the first View or Update.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %w", models.ErrPersistence, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", models.ErrPersistence, err)
	}
	// SQLite allows one writer; one connection also keeps the pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range connPragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %w", models.ErrPersistence, pragma, err)
		}
	}
	return &SQLiteStore{db: db, locks: newKeyedMutex()}, nil
}

// Migrate applies the embedded migrations newer than the database's
// user_version. Files are named NNN_description.sql and each one runs in its
// own transaction together with the version bump.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("%w: read schema version: %w", models.ErrPersistence, err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("%w: list migrations: %w", models.ErrPersistence, err)
	}
	slices.Sort(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}
		stmt, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", models.ErrPersistence, path.Base(name), err)
		}
		if err := s.applyMigration(ctx, version, string(stmt)); err != nil {
			return fmt.Errorf("%w: apply %s: %w", models.ErrPersistence, path.Base(name), err)
		}
		current = version
	}
	return nil
}

func migrationVersion(name string) (int, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	n, err := strconv.Atoi(prefix)
	if !ok || err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: migration %s has no version prefix", models.ErrPersistence, base)
	}
	return n, nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	// PRAGMA takes no bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadPartition(ctx context.Context, q queryer, user string) (*models.Partition, error) {
	var doc string
	err := q.QueryRowContext(ctx, "SELECT document FROM partitions WHERE user_id = ?", user).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewPartition(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load partition %s: %w", models.ErrPersistence, user, err)
	}

	p := models.NewPartition()
	if err := json.Unmarshal([]byte(doc), p); err != nil {
		return nil, fmt.Errorf("%w: decode partition %s: %w", models.ErrPersistence, user, err)
	}
	return p, nil
}

func (s *SQLiteStore) View(ctx context.Context, user string) (*models.Partition, error) {
	if err := validUser(user); err != nil {
		return nil, err
	}
	return loadPartition(ctx, s.db, user)
}

func (s *SQLiteStore) Update(ctx context.Context, user string, fn func(p *models.Partition) error) error {
	if err := validUser(user); err != nil {
		return err
	}
	unlock := s.locks.Lock(user)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", models.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := loadPartition(ctx, tx, user)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encode partition %s: %w", models.ErrPersistence, user, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO partitions (user_id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		user, string(doc), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: save partition %s: %w", models.ErrPersistence, user, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit partition %s: %w", models.ErrPersistence, user, err)
	}
	return nil
}

func (s *SQLiteStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM partitions ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %w", models.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("%w: scan user: %w", models.ErrPersistence, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
