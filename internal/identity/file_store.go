package identity

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type fileState struct {
	UserID string `yaml:"user_id"`
}

// FileStore keeps the identifier in a small YAML document on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on first
// save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", s.path)
	}

	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return "", false, errors.Wrapf(err, "parse %s", s.path)
	}
	return state.UserID, state.UserID != "", nil
}

// Save implements Store. The write goes through a temp file so a crash never
// leaves a truncated document behind.
func (s *FileStore) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create state dir")
	}

	data, err := yaml.Marshal(fileState{UserID: id})
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}
