// Package blob stores trade attachments and migrates them out of snapshot
// archives.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for an unknown URL.
var ErrNotFound = errors.New("blob not found")

// Store is a destination for attachments.
type Store interface {
	// Put stores data under key and returns the public URL of the blob.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the content stored at url.
	Get(ctx context.Context, url string) ([]byte, error)
}

// FSStore writes blobs below a directory. URLs are BaseURL + "/" + key.
type FSStore struct {
	Root    string
	BaseURL string
}

// NewFSStore returns a store rooted at root, creating it if needed.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename blob: %w", err)
	}
	return s.BaseURL + "/" + key, nil
}

func (s *FSStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(url, s.BaseURL+"/")
	if !ok {
		return nil, ErrNotFound
	}
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// path maps a key to a file below Root, rejecting keys that escape it.
func (s *FSStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// MemStore keeps blobs in memory. It is used by tests and dry runs.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string]memBlob
}

type memBlob struct {
	data        []byte
	contentType string
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string]memBlob)}
}

func (m *MemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memBlob{data: append([]byte(nil), data...), contentType: contentType}
	return "mem://" + key, nil
}

func (m *MemStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[strings.TrimPrefix(url, "mem://")]
	if !ok {
		return nil, ErrNotFound
	}
	return b.data, nil
}

// ContentType returns the content type a key was stored with.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key].contentType
}

// Len returns the number of stored blobs.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
