// Package localblob implements service.BlobStore on the local filesystem.
// Objects are served by the HTTP API under its files prefix.
package localblob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tasktrack/internal/service"
)

// Store keeps objects as files below a root directory.
type Store struct {
	root    string
	baseURL string
}

var _ service.BlobStore = (*Store)(nil)

// New creates a Store rooted at dir, creating it if needed. Public URLs
// are baseURL joined with the object path.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localblob: create %s: %w", dir, err)
	}
	return &Store{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are stored in.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) file(path string) (string, error) {
	p := filepath.FromSlash(path)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("localblob: invalid object path %q", path)
	}
	return filepath.Join(s.root, p), nil
}

// Upload implements service.BlobStore. The content type is not stored.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := s.file(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return "", fmt.Errorf("localblob: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(name), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("localblob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("localblob: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("localblob: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return "", fmt.Errorf("localblob: %w", err)
	}
	return s.PublicURL(path), nil
}

// PublicURL implements service.BlobStore.
func (s *Store) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/")
}

// Remove implements service.BlobStore.
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		name, err := s.file(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = os.Remove(name)
		switch {
		case errors.Is(err, os.ErrNotExist):
			errs = append(errs, fmt.Errorf("%w: %s", service.ErrObjectNotFound, p))
		case err != nil:
			errs = append(errs, fmt.Errorf("localblob: %w", err))
		}
	}
	return errors.Join(errs...)
}
