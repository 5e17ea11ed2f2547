package identity

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

// YAMLStore persists identity state as a hand-editable YAML file. Mappings
// are a list rather than a plain map so their order is preserved; a file
// lock guards against two CLI invocations rewriting the file at once.
type YAMLStore struct {
	path   string
	lock   *flock.Flock
	logger *logrus.Logger
}

type yamlState struct {
	UserMappings []yamlMapping     `yaml:"user_mappings"`
	Avatars      map[string]string `yaml:"avatars,omitempty"`
}

type yamlMapping struct {
	Raw       string `yaml:"raw"`
	Canonical string `yaml:"canonical"`
}

// NewYAMLStore creates a store backed by the YAML file at path. The file
// is created on first Save; a missing file loads as empty state.
func NewYAMLStore(path string, logger *logrus.Logger) (*YAMLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.ConfigPersistence(err, "create store directory")
	}
	return &YAMLStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}, nil
}

// Close is a no-op; the store holds no open handles between calls.
func (s *YAMLStore) Close() error {
	return nil
}

// Load reads the identity state from the YAML file.
func (s *YAMLStore) Load(ctx context.Context) (State, error) {
	locked, err := s.lock.TryRLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return State{}, apperrors.ConfigPersistence(err, "acquire store read lock")
	}
	if !locked {
		return State{}, apperrors.New(apperrors.KindConfigPersistence, "identity file locked by another process")
	}
	defer s.lock.Unlock()

	state := State{Avatars: make(map[string]string)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return State{}, apperrors.ConfigPersistence(err, "read identity file")
	}

	var raw yamlState
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return State{}, apperrors.ConfigPersistence(err, "parse identity file")
	}

	for _, m := range raw.UserMappings {
		state.Mappings = append(state.Mappings, models.Mapping{Raw: m.Raw, Canonical: m.Canonical})
	}
	for canonical, ref := range raw.Avatars {
		state.Avatars[canonical] = ref
	}
	return state, nil
}

// Save rewrites the YAML file with the given state.
func (s *YAMLStore) Save(ctx context.Context, state State) error {
	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return apperrors.ConfigPersistence(err, "acquire store write lock")
	}
	if !locked {
		return apperrors.New(apperrors.KindConfigPersistence, "identity file locked by another process")
	}
	defer s.lock.Unlock()

	out := yamlState{Avatars: state.Avatars}
	for _, m := range state.Mappings {
		out.UserMappings = append(out.UserMappings, yamlMapping{Raw: m.Raw, Canonical: m.Canonical})
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return apperrors.ConfigPersistence(err, "encode identity file")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return apperrors.ConfigPersistence(err, "write identity file")
	}
	s.logger.WithField("path", s.path).Debug("Identity file written")
	return nil
}
