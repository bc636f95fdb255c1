// Package secret provides durable storage for the session token.
package secret

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoToken is returned when no token is stored.
var ErrNoToken = errors.New("no token stored")

// Store is a key-value secret store for the bearer token. Each operation
// is a single atomic store access; callers never read-modify-write.
type Store interface {
	// Token returns the stored token, or ErrNoToken.
	Token() (string, error)
	// SetToken replaces the stored token.
	SetToken(token string) error
	// ClearToken removes the stored token. Clearing an empty store is not
	// an error.
	ClearToken() error
}

// Memory is an in-process Store. It is the default for tests and for
// hosts without a writable config directory.
type Memory struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *Memory) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

func (m *Memory) ClearToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}

// File persists the token to a 0600 file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed store at path, creating parent
// directories as needed.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &File{path: path}, nil
}

// DefaultPath returns the token path under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bankrai", "token"), nil
}

func (f *File) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (f *File) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.path, []byte(token+"\n"), 0o600)
}

func (f *File) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
