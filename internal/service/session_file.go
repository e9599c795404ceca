package service

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoSession is returned by SessionFile.Load when nothing is persisted.
var ErrNoSession = errors.New("no persisted session")

// SessionFile persists the node's session token between restarts.
type SessionFile struct {
	path string
}

// NewSessionFile returns a store for the token at path. An empty path
// disables persistence.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Save writes the token, readable by the owner only.
func (f *SessionFile) Save(token string) error {
	if f.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load reads the token. Returns ErrNoSession when the file is missing or empty.
func (f *SessionFile) Load() (string, error) {
	if f.path == "" {
		return "", ErrNoSession
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", ErrNoSession
	}
	return string(b), nil
}

// Clear removes the persisted token. Missing files are not an error.
func (f *SessionFile) Clear() error {
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
