// Package file provides a BlobStore that keeps one file per key inside a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store reads and writes blobs as <dir>/<key>.json.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store rooted at it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, domain.NewValidationError("storage.file.dir", "must not be empty")
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating storage dir %q: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", domain.NewValidationErrorWithValue("key", "may only contain letters, digits, '_' and '-'", key)
	}

	return filepath.Join(s.dir, key+".json"), nil
}

// Get reads the blob for key. A missing file reports the key as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("reading %q: %w", p, err)
	}

	return data, true, nil
}

// Set writes value to a temporary file and renames it over the key's file.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %q: %w", key, err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %q: %w", tmpName, err)
	}

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %q: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", tmpName, p, err)
	}

	return nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "blobstore-file"
}

// Check verifies the directory still exists.
func (s *Store) Check(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return domain.NewUnavailableError("blobstore-file", err.Error())
	}

	if !info.IsDir() {
		return domain.NewUnavailableError("blobstore-file", s.dir+" is not a directory")
	}

	return nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	return nil
}
