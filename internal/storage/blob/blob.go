// Package blob stores the raw artifact bytes (uploaded documents, dossier
// bundles) outside the relational rows. Rows carry only the locator returned
// by Put; content is immutable once written.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"iris/pkg/platform/sentinel"
)

// Store is the minimal content store contract. Load's signature doubles as
// the anchor protocol's bundle loader.
type Store interface {
	Put(ctx context.Context, key string, content []byte) (string, error)
	Load(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

// InMemory backs unit tests and local development.
type InMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string][]byte)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Put(_ context.Context, key string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; ok {
		return "", fmt.Errorf("blob %s: %w", key, sentinel.ErrConflict)
	}
	s.blobs[key] = append([]byte(nil), content...)
	return key, nil
}

func (s *InMemory) Load(_ context.Context, locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", locator, sentinel.ErrNotFound)
	}
	return append([]byte(nil), content...), nil
}

func (s *InMemory) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, locator)
	return nil
}

// Filesystem writes blobs under a root directory. Locators are slash paths
// relative to the root; keys must not escape it.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

var _ Store = (*Filesystem)(nil)

func (s *Filesystem) path(locator string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(locator))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("blob locator %q escapes the store root", locator)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Filesystem) Put(_ context.Context, key string, content []byte) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("blob %s: %w", key, sentinel.ErrConflict)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return key, nil
}

func (s *Filesystem) Load(_ context.Context, locator string) ([]byte, error) {
	path, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", locator, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", locator, err)
	}
	return content, nil
}

func (s *Filesystem) Delete(_ context.Context, locator string) error {
	path, err := s.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", locator, err)
	}
	return nil
}
