// Package service defines the backend-agnostic interfaces the sync layer talks to.
package service

import (
	"context"
	"errors"

	"tasktrack/internal/task"
)

// ErrObjectNotFound is returned by a BlobStore when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Gateway defines the request/response operations against the remote task store.
// Every call is scoped to ownerID server-side.
// The store never imports a backend SDK directly.
type Gateway interface {
	// List returns the owner's tasks, newest first.
	// Returns an empty slice, not an error, when the owner has none.
	List(ctx context.Context, ownerID string) ([]task.Task, error)

	// Get returns a single task.
	// Returns task.ErrNotFound if no row matches both id and ownerID.
	Get(ctx context.Context, id, ownerID string) (task.Task, error)

	// Create inserts a task. The store assigns ID and CreatedAt.
	Create(ctx context.Context, ownerID string, in task.NewTask) (task.Task, error)

	// Update applies a partial update.
	// Returns task.ErrNotFound if no row matches both id and ownerID.
	Update(ctx context.Context, id, ownerID string, fields task.Fields) error

	// Delete removes a task.
	// Returns task.ErrNotFound if no row matches both id and ownerID.
	Delete(ctx context.Context, id, ownerID string) error
}

// ChangeFeed is the push primitive of the remote store.
type ChangeFeed interface {
	// Subscribe opens a stream of change messages for the task collection.
	// Implementations filter to ownerID when the transport allows it.
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}

// Subscription is a live change stream. Close releases it; Close is safe to
// call more than once.
type Subscription interface {
	// Notifications delivers raw ChangeMessage payloads in transport order.
	// The channel is closed when the subscription ends.
	Notifications() <-chan []byte

	// Err returns the error that ended the subscription, if any.
	Err() error

	Close() error
}

// BlobStore stores attachment bytes.
type BlobStore interface {
	// Upload writes data at path and returns its public URL.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// PublicURL returns the URL an uploaded object is served from.
	PublicURL(path string) string

	// Remove deletes the objects at paths.
	// Returns an error wrapping ErrObjectNotFound if any object is missing.
	Remove(ctx context.Context, paths ...string) error
}

// User is an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ErrNotSignedIn is returned when an operation needs a session and there is none.
var ErrNotSignedIn = errors.New("not signed in")

// Auth is the authentication collaborator.
type Auth interface {
	// CurrentUser returns the signed-in user, if any.
	CurrentUser() (User, bool)

	SignUp(ctx context.Context, email, password, fullName string) (User, error)
	SignIn(ctx context.Context, email, password string) (User, error)
	SignOut(ctx context.Context) error

	// OnChange registers fn to be called after every session change.
	// signedIn is false after sign-out. The returned func unregisters fn.
	OnChange(fn func(user User, signedIn bool)) (unsubscribe func())
}

// Account is a stored credential record.
type Account struct {
	User
	FullName     string
	PasswordHash string
}

// ErrAccountExists is returned by Accounts.Create for a duplicate email.
var ErrAccountExists = errors.New("account already exists")

// ErrAccountNotFound is returned by Accounts.FindByEmail for an unknown email.
var ErrAccountNotFound = errors.New("account not found")

// Accounts persists user credentials for the Auth implementation.
type Accounts interface {
	Create(ctx context.Context, email, fullName, passwordHash string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
}
