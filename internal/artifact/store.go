// File: internal/artifact/store.go
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// ErrEmpty is returned when asked to persist a zero-length artifact.
var ErrEmpty = errors.New("artifact is empty")

// Store persists run artifacts to a filesystem. Writes replace the target
// in one rename so readers never observe a half-written image.
type Store struct {
	fs afero.Fs
}

// NewStore returns a Store backed by fs. A nil fs means the OS filesystem.
func NewStore(fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs}
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Resolve expands a leading ~ and cleans the path.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("artifact path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand artifact path %q: %w", path, err)
	}
	return filepath.Clean(expanded), nil
}

// Write stores data at path, creating parent directories and overwriting
// any previous artifact.
func (s *Store) Write(path string, data []byte) (err error) {
	if len(data) == 0 {
		return ErrEmpty
	}
	path, err = Resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err = s.fs.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err = s.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Remove deletes a stale artifact. A missing file is not an error.
func (s *Store) Remove(path string) error {
	path, err := Resolve(path)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale artifact %s: %w", path, err)
	}
	return nil
}
