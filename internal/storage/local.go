package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/damstudio/backend/internal/models"
)

// localStorage keeps version files on the local filesystem under basePath
type localStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new localStorage instance.
// baseURL is the public prefix under which basePath is served.
func NewLocalStorage(basePath, baseURL string) *localStorage {
	return &localStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// generatePath maps a slash separated blob key to a path inside basePath
func (s *localStorage) generatePath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file key %q: %w", key, models.ErrValidation)
	}
	return filepath.Join(s.basePath, clean), nil
}

// Put writes r to the file of key and returns the number of bytes written.
// The content is written to a temporary file first, so a failed upload never leaves a partial file behind.
func (s *localStorage) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	path, err := s.generatePath(key)
	if err != nil {
		return 0, err
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	sw := NewSizeWriter()
	if _, err := io.Copy(io.MultiWriter(tmp, sw), &contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}

	return sw.Size(), nil
}

// Open opens the file of key for reading
func (s *localStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.generatePath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %q: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes the file of key; a missing file is not an error
func (s *localStorage) Delete(ctx context.Context, key string) error {
	path, err := s.generatePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URL returns the public URL of key
func (s *localStorage) URL(key string) string {
	return joinURL(s.baseURL, key)
}
