package identity

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/gitviz/gitviz/internal/models"
)

// State is the persisted form of a resolver: the raw-to-canonical table in
// insertion order plus the avatar reference per canonical name.
type State struct {
	Mappings []models.Mapping
	Avatars  map[string]string
}

// Store persists identity state between runs. Implementations load the
// whole state at startup and rewrite it after mutating commands; the
// resolver itself never touches storage.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Close() error
}

// Options selects and configures a Store backend.
type Options struct {
	// Path is the store location for file-backed backends. A .yaml or
	// .yml suffix selects the hand-editable YAML backend; anything else
	// is treated as a SQLite database.
	Path string

	// PostgresDSN, when set, selects the shared Postgres backend and
	// takes precedence over Path.
	PostgresDSN string
}

// Open creates the store backend described by opts.
func Open(opts Options, logger *logrus.Logger) (Store, error) {
	if opts.PostgresDSN != "" {
		return NewPostgresStore(opts.PostgresDSN, logger)
	}
	switch filepath.Ext(opts.Path) {
	case ".yaml", ".yml":
		return NewYAMLStore(opts.Path, logger)
	default:
		return NewSQLiteStore(opts.Path, logger)
	}
}
