package identity

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

// PostgresStore persists identity state in PostgreSQL, for teams sharing
// one mapping table across machines.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore connects to the database described by dsn.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, apperrors.ConfigPersistence(err, "connect to postgres store")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.ConfigPersistence(err, "init store schema")
	}
	logger.Debug("Connected to postgres identity store")
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_mappings (
		seq BIGSERIAL PRIMARY KEY,
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Load reads the full identity state, mappings ordered by sequence.
func (s *PostgresStore) Load(ctx context.Context) (State, error) {
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
func (s *PostgresStore) Save(ctx context.Context, state State) error {
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
			`INSERT INTO user_mappings (raw, canonical) VALUES ($1, $2)`,
			m.Raw, m.Canonical)
		if err != nil {
			return apperrors.ConfigPersistence(err, fmt.Sprintf("insert mapping %q", m.Raw))
		}
	}
	for canonical, path := range state.Avatars {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO avatars (canonical, path) VALUES ($1, $2)`,
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
