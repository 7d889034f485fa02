package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/otp-autofill/internal/model"
)

// defaultLimit applies to history queries called with a non-positive limit.
const defaultLimit = 20

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetBool returns the boolean setting stored under key.
func (s *SQLiteStore) GetBool(ctx context.Context, key string) (bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting setting %s: %w", key, err)
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parsing setting %s: %w", key, err)
	}
	return b, nil
}

// SetBool stores a boolean setting, replacing any previous value.
func (s *SQLiteStore) SetBool(ctx context.Context, key string, value bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatBool(value), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// RecordCode appends an extracted code to the history.
func (s *SQLiteStore) RecordCode(ctx context.Context, code model.Code) error {
	if code.FoundAt.IsZero() {
		code.FoundAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codes (id, message_id, code, provider, found_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), code.MessageID, code.Value,
		string(code.Provider), code.FoundAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording code for message %s: %w", code.MessageID, err)
	}
	return nil
}

// LastCode returns the most recently found code, or nil when none exists.
func (s *SQLiteStore) LastCode(ctx context.Context) (*model.Code, error) {
	codes, err := s.RecentCodes(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}
	return &codes[0], nil
}

// RecentCodes returns up to limit codes, newest first.
func (s *SQLiteStore) RecentCodes(ctx context.Context, limit int) ([]model.Code, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var codes []model.Code
	err := s.db.SelectContext(ctx, &codes, `
		SELECT code, message_id, provider, found_at
		FROM codes
		ORDER BY found_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying codes: %w", err)
	}
	return codes, nil
}

// RecordCheck stores the summary of a finished check cycle. A missing ID
// is generated.
func (s *SQLiteStore) RecordCheck(ctx context.Context, rec model.CheckRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checks (id, status, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Status), rec.Detail,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording check %s: %w", rec.ID, err)
	}
	return nil
}

// RecentChecks returns up to limit check records, newest first.
func (s *SQLiteStore) RecentChecks(ctx context.Context, limit int) ([]model.CheckRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var checks []model.CheckRecord
	err := s.db.SelectContext(ctx, &checks, `
		SELECT id, status, detail, started_at, finished_at
		FROM checks
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying checks: %w", err)
	}
	return checks, nil
}
