// Package namestore persists the single piece of client-local state:
// the chosen display name, stored as a plain string across sessions.
package namestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chatflow/server/internal/chat"
)

const fileName = "display_name"

// Store reads and writes the persisted display name.
type Store struct {
	path string
}

// New creates a store rooted at the given directory.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, fileName)}
}

// Default creates a store under the user's config directory.
func Default() (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, "chatflow")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return New(dir), nil
}

// Load returns the persisted display name. A missing file or stale content
// that no longer passes validation yields ("", false) so the caller prompts
// for a fresh name.
func (s *Store) Load() (string, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(string(raw))
	if chat.ValidateUsername(name) != nil {
		return "", false
	}
	return name, true
}

// Save validates and persists a display name for future sessions.
func (s *Store) Save(name string) error {
	name = strings.TrimSpace(name)
	if err := chat.ValidateUsername(name); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(name+"\n"), 0o600)
}
