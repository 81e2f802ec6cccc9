// Package gcs implements service.BlobStore using the Cloud Storage JSON API.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"tasktrack/internal/service"
)

const (
	// APITimeout is the timeout for metadata calls such as delete.
	APITimeout = 5 * time.Second

	// UploadTimeout is the timeout for a single object upload.
	UploadTimeout = 60 * time.Second

	// PublicHost serves objects of publicly readable buckets.
	PublicHost = "https://storage.googleapis.com"
)

// Client implements service.BlobStore against one bucket.
type Client struct {
	svc     *storage.Service
	bucket  string
	baseURL string
}

var _ service.BlobStore = (*Client)(nil)

// New creates a Client for bucket. Credentials come from credentialsFile
// when set, otherwise from Application Default Credentials.
func New(ctx context.Context, bucket, credentialsFile string) (*Client, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}

	var creds *google.Credentials
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", credentialsFile, err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials file %s: %w", credentialsFile, err)
		}
	} else {
		var err error
		creds, err = google.FindDefaultCredentials(ctx, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("no storage credentials: %w", err)
		}
	}

	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	return NewWithHTTPClient(ctx, bucket, httpClient)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, bucket string, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &Client{
		svc:     svc,
		bucket:  bucket,
		baseURL: PublicHost + "/" + bucket,
	}, nil
}

// WithPublicBaseURL serves public URLs from base instead of the bucket's
// default address, e.g. a CDN in front of the bucket.
func (c *Client) WithPublicBaseURL(base string) *Client {
	if base != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

// Upload stores data as the object at path.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	obj := &storage.Object{Name: path, ContentType: contentType}
	_, err := c.svc.Objects.Insert(c.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError(path, err)
	}
	return c.PublicURL(path), nil
}

// PublicURL returns the address the object at path is served from.
func (c *Client) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// Remove deletes the objects at paths. Every path is attempted; the errors
// are joined.
func (c *Client) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := c.remove(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) remove(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	err := c.svc.Objects.Delete(c.bucket, path).Context(ctx).Do()
	if err != nil {
		return wrapError(path, err)
	}
	return nil
}

// wrapError maps API errors to user-facing ones.
func wrapError(path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: request timed out: %w", path, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", service.ErrObjectNotFound, path)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: storage credentials rejected: %w", path, err)
		}
	}

	return fmt.Errorf("%s: %w", path, err)
}
