// Package repo implements the data persistence layer for domain entities.
// This file provides the JSON-file store backing the file users resource.
package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tbourn/go-clinic-api/internal/domain"
)

// FileStore keeps FileUser records in a single JSON array on disk.
//
// All access goes through one mutex; writes go to a temporary file in the same
// directory which is then renamed over the target, so readers never observe a
// partial file. A missing file is reported as an error wrapping
// fs.ErrNotExist.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store for the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns every stored user.
func (s *FileStore) Load() ([]domain.FileUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update loads the users, passes them to fn and persists what fn returns.
// Nothing is written when fn fails.
func (s *FileStore) Update(fn func([]domain.FileUser) ([]domain.FileUser, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.read()
	if err != nil {
		return err
	}
	next, err := fn(users)
	if err != nil {
		return err
	}
	return s.write(next)
}

// Init creates the file with an empty array when it does not exist yet.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return s.write([]domain.FileUser{})
}

func (s *FileStore) read() ([]domain.FileUser, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var users []domain.FileUser
	if len(b) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, fmt.Errorf("decode users file: %v", err)
	}
	return users, nil
}

func (s *FileStore) write(users []domain.FileUser) error {
	if users == nil {
		users = []domain.FileUser{}
	}
	b, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
