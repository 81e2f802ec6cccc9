package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tasktrack/internal/service"
)

// FakeBlobStore is an in-memory implementation of service.BlobStore for testing.
type FakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	// Error injection for testing
	UploadErr error
	RemoveErr error

	// Ops, when set, receives "blob:<op>:<path>" entries.
	Ops *OpLog
}

// NewFakeBlobStore creates an empty FakeBlobStore.
func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Upload implements service.BlobStore.
func (f *FakeBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Ops != nil {
		f.Ops.Record("blob:upload:" + path)
	}
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	f.objects[path] = append([]byte(nil), data...)
	f.types[path] = contentType
	return f.PublicURL(path), nil
}

// PublicURL implements service.BlobStore.
func (f *FakeBlobStore) PublicURL(path string) string {
	return "https://blobs.example.test/" + path
}

// Remove implements service.BlobStore.
func (f *FakeBlobStore) Remove(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		if f.Ops != nil {
			f.Ops.Record("blob:remove:" + p)
		}
		if f.RemoveErr != nil {
			return f.RemoveErr
		}
		if _, ok := f.objects[p]; !ok {
			return fmt.Errorf("%w: %s", service.ErrObjectNotFound, p)
		}
		delete(f.objects, p)
		delete(f.types, p)
	}
	return nil
}

// Object returns the stored bytes and content type at path.
func (f *FakeBlobStore) Object(path string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	return data, f.types[path], ok
}

// Paths returns the stored object paths, sorted.
func (f *FakeBlobStore) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for p := range f.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
