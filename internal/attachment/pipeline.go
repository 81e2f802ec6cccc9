// Package attachment uploads task files to the blob store and removes them
// when their task goes away.
package attachment

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// Pipeline moves attachment bytes in and out of a BlobStore.
type Pipeline struct {
	blobs  service.BlobStore
	suffix func() string
}

// New creates a Pipeline over blobs.
func New(blobs service.BlobStore) *Pipeline {
	return &Pipeline{blobs: blobs, suffix: newSuffix}
}

// WithSuffix replaces the unique suffix generator (for testing).
func (p *Pipeline) WithSuffix(fn func() string) *Pipeline {
	p.suffix = fn
	return p
}

// newSuffix returns a UUIDv7: time-ordered, so two uploads by one owner in
// the same millisecond still get distinct paths.
func newSuffix() string {
	return uuid.Must(uuid.NewV7()).String()
}

// StoragePath builds "{ownerID}/{suffix}.{ext}". The extension is taken from
// fileName, lower-cased; files without one get no dot.
func StoragePath(ownerID, suffix, fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(baseName(fileName)), "."))
	if ext == "" {
		return ownerID + "/" + suffix
	}
	return ownerID + "/" + suffix + "." + ext
}

// baseName strips any directory part a browser or shell left in the name.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}

// Upload stores f under the owner's prefix and returns its descriptor.
func (p *Pipeline) Upload(ctx context.Context, ownerID string, f task.File) (task.Attachment, error) {
	if ownerID == "" {
		return task.Attachment{}, task.Validationf("owner id is required")
	}
	name := baseName(f.Name)
	if name == "" || name == "." || name == "/" {
		return task.Attachment{}, task.Validationf("file name is required")
	}

	storagePath := StoragePath(ownerID, p.suffix(), name)
	url, err := p.blobs.Upload(ctx, storagePath, f.Data, f.ContentType)
	if err != nil {
		return task.Attachment{}, fmt.Errorf("%w: upload %s: %w", task.ErrUpload, storagePath, err)
	}
	if url == "" {
		url = p.blobs.PublicURL(storagePath)
	}

	return task.Attachment{
		StoragePath:      storagePath,
		PublicURL:        url,
		OriginalFileName: name,
	}, nil
}

// Remove deletes the blob at storagePath. A missing blob is reported as an
// ErrUpload that also matches service.ErrObjectNotFound; callers decide
// whether that is tolerable.
func (p *Pipeline) Remove(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return task.Validationf("storage path is required")
	}
	if err := p.blobs.Remove(ctx, storagePath); err != nil {
		return fmt.Errorf("%w: remove %s: %w", task.ErrUpload, storagePath, err)
	}
	return nil
}
