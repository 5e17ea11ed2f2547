package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

// SQLiteStore persists identity state in a local SQLite database. This is
// the default backend.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.ConfigPersistence(err, "create store directory")
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperrors.ConfigPersistence(err, "connect to sqlite store")
	}

	// WAL keeps concurrent CLI invocations from tripping over each other.
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA foreign_keys = ON")

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.ConfigPersistence(err, "init store schema")
	}
	logger.WithField("path", path).Debug("Identity store opened")
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_mappings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		raw TEXT NOT NULL UNIQUE,
		canonical TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS avatars (
		canonical TEXT PRIMARY KEY,
		path TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the full identity state. Mapping order follows the sequence
// column, so insertion order survives restarts.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	state := State{Avatars: make(map[string]string)}

	var mappings []models.Mapping
	err := s.db.SelectContext(ctx, &mappings,
		`SELECT raw, canonical FROM user_mappings ORDER BY seq`)
	if err != nil {
		return State{}, apperrors.ConfigPersistence(err, "load user mappings")
	}
	state.Mappings = mappings

	rows, err := s.db.QueryxContext(ctx, `SELECT canonical, path FROM avatars`)
	if err != nil {
		return State{}, apperrors.ConfigPersistence(err, "load avatars")
	}
	defer rows.Close()
	for rows.Next() {
		var canonical, path string
		if err := rows.Scan(&canonical, &path); err != nil {
			return State{}, apperrors.ConfigPersistence(err, "scan avatar row")
		}
		state.Avatars[canonical] = path
	}
	if err := rows.Err(); err != nil {
		return State{}, apperrors.ConfigPersistence(err, "iterate avatar rows")
	}

	return state, nil
}

// Save rewrites the full identity state in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.ConfigPersistence(err, "begin save transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_mappings`); err != nil {
		return apperrors.ConfigPersistence(err, "clear user mappings")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM avatars`); err != nil {
		return apperrors.ConfigPersistence(err, "clear avatars")
	}

	for _, m := range state.Mappings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_mappings (raw, canonical) VALUES (?, ?)`,
			m.Raw, m.Canonical)
		if err != nil {
			return apperrors.ConfigPersistence(err, fmt.Sprintf("insert mapping %q", m.Raw))
		}
	}
	for canonical, path := range state.Avatars {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO avatars (canonical, path) VALUES (?, ?)`,
			canonical, path)
		if err != nil {
			return apperrors.ConfigPersistence(err, fmt.Sprintf("insert avatar for %q", canonical))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.ConfigPersistence(err, "commit identity state")
	}
	s.logger.WithField("mappings", len(state.Mappings)).Debug("Identity state saved")
	return nil
}
