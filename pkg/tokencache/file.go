package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the token as a JSON file on local disk.
// The file holds a bearer credential and is written with mode 0600.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed token store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Read loads the stored token. An absent or unreadable file, a corrupted
// entry, or an expired token all return ErrCacheMiss; the expiry is compared
// against the current time with no grace period.
func (s *FileStore) Read(_ context.Context) (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		CacheMisses.Inc()
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheMiss, err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		CacheErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if !token.Valid() && !token.CanRefresh() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("file").Inc()
	return &token, nil
}

// Write stores the token atomically: it writes to a temp file in the same
// directory and renames it over the target, so a crash never leaves a
// truncated cache file.
func (s *FileStore) Write(_ context.Context, token *Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
