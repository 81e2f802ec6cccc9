// Package workspace binds the signed-in session to a task store and its
// change stream listener.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"tasktrack/internal/attachment"
	"tasktrack/internal/changestream"
	"tasktrack/internal/service"
	"tasktrack/internal/taskstore"
)

// Backend groups the remote collaborators a store needs.
type Backend struct {
	Gateway service.Gateway

	// Feed is optional; without one the store is snapshot-only.
	Feed service.ChangeFeed

	// Pipeline is optional; without one attachments are rejected.
	Pipeline *attachment.Pipeline
}

// Workspace owns at most one live store, scoped to the current user.
type Workspace struct {
	auth       service.Auth
	backend    Backend
	logger     *log.Logger
	onError    taskstore.ErrorHandler
	retryDelay time.Duration

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
	live        *Live
}

// Live is a store for one owner kept current by the change stream until
// Close.
type Live struct {
	store  *taskstore.Store
	cancel context.CancelFunc
	done   chan struct{}
}

// Store returns the followed store.
func (l *Live) Store() *taskstore.Store {
	return l.store
}

// Close closes the store and waits for its listener to be released.
func (l *Live) Close() {
	l.store.Close()
	l.cancel()
	<-l.done
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger passed to stores and listeners.
func WithLogger(l *log.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithErrorHandler sets the error channel of every store the workspace opens.
func WithErrorHandler(fn taskstore.ErrorHandler) Option {
	return func(w *Workspace) { w.onError = fn }
}

// WithRetryDelay sets the pause before resubscribing after the change
// stream ends unexpectedly.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Workspace) { w.retryDelay = d }
}

// New creates a Workspace.
func New(auth service.Auth, backend Backend, opts ...Option) *Workspace {
	w := &Workspace{
		auth:       auth,
		backend:    backend,
		logger:     log.New(io.Discard, "", 0),
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Auth returns the session collaborator.
func (w *Workspace) Auth() service.Auth {
	return w.auth
}

func (w *Workspace) newStore(ownerID string) *taskstore.Store {
	opts := []taskstore.Option{taskstore.WithLogger(w.logger)}
	if w.backend.Pipeline != nil {
		opts = append(opts, taskstore.WithPipeline(w.backend.Pipeline))
	}
	if w.onError != nil {
		opts = append(opts, taskstore.WithErrorHandler(w.onError))
	}
	return taskstore.New(ownerID, w.backend.Gateway, opts...)
}

// Open returns a freshly loaded store for the current user without a
// change stream. The caller closes it.
func (w *Workspace) Open(ctx context.Context) (*taskstore.Store, error) {
	user, ok := w.auth.CurrentUser()
	if !ok {
		return nil, service.ErrNotSignedIn
	}
	store := w.newStore(user.ID)
	if err := store.Refresh(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Start follows the session until ctx is done or Stop is called. While a
// user is signed in the workspace keeps a live store: loaded on sign-in,
// fed by the change stream, and discarded on sign-out.
func (w *Workspace) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.ctx != nil {
		w.mu.Unlock()
		return fmt.Errorf("workspace: already started")
	}
	w.ctx = ctx
	w.mu.Unlock()

	unsubscribe := w.auth.OnChange(func(user service.User, signedIn bool) {
		if signedIn {
			w.attach(user)
		} else {
			w.detach()
		}
	})

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()

	if user, ok := w.auth.CurrentUser(); ok {
		w.attach(user)
	}
	return nil
}

// Stop detaches from the session and releases the live store.
func (w *Workspace) Stop() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	w.detach()
}

// Store returns the live store, if a user is signed in.
func (w *Workspace) Store() (*taskstore.Store, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.live == nil {
		return nil, false
	}
	return w.live.store, true
}

// Follow returns a loaded store for ownerID that follows the change stream
// until ctx is done or the Live is closed. It is independent of the session,
// so a server can hold one per authenticated caller. If the first load fails
// the Live is released and the error returned.
func (w *Workspace) Follow(ctx context.Context, ownerID string) (*Live, error) {
	l := w.start(ctx, ownerID)
	if err := l.store.Refresh(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// start creates the store and its follower without loading it.
func (w *Workspace) start(parent context.Context, ownerID string) *Live {
	ctx, cancel := context.WithCancel(parent)
	l := &Live{
		store:  w.newStore(ownerID),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if w.backend.Feed == nil {
		close(l.done)
		return l
	}

	// Subscribe before loading so no change between the two is lost.
	first, err := w.listen(ctx, ownerID)
	if err != nil {
		w.report(l.store, "listen", err)
		first = nil
	}
	go w.follow(ctx, l, ownerID, first)
	return l
}

// attach replaces any live store with a new one for user.
func (w *Workspace) attach(user service.User) {
	w.detach()

	w.mu.Lock()
	parent := w.ctx
	w.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	l := w.start(parent, user.ID)
	w.mu.Lock()
	w.live = l
	w.mu.Unlock()

	// Refresh reports its own failures.
	_ = l.store.Refresh(parent)
}

// detach closes the live store and waits for its listener to be released.
func (w *Workspace) detach() {
	w.mu.Lock()
	l := w.live
	w.live = nil
	w.mu.Unlock()

	if l != nil {
		l.Close()
	}
}

func (w *Workspace) listen(ctx context.Context, ownerID string) (*changestream.Listener, error) {
	return changestream.Listen(ctx, w.backend.Feed, ownerID,
		changestream.WithFetcher(w.backend.Gateway),
		changestream.WithLogger(w.logger),
	)
}

// follow feeds the store from the change stream, resubscribing and
// reloading when the stream ends while the session is still current.
func (w *Workspace) follow(ctx context.Context, live *Live, ownerID string, l *changestream.Listener) {
	defer close(live.done)

	for {
		if l != nil {
			live.store.Run(ctx, l.Events())
			if err := l.Close(); err != nil {
				w.logger.Printf("workspace: close listener: %v", err)
			}
			l = nil
		}
		if ctx.Err() != nil {
			return
		}

		w.logger.Printf("workspace: change stream for %s ended, resubscribing", ownerID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}

		next, err := w.listen(ctx, ownerID)
		if err != nil {
			w.report(live.store, "listen", err)
			continue
		}
		l = next
		// Events missed while disconnected are recovered by reloading.
		_ = live.store.Refresh(ctx)
	}
}

func (w *Workspace) report(store *taskstore.Store, op string, err error) {
	if w.onError != nil {
		w.onError(op, err)
		return
	}
	w.logger.Printf("workspace: %s for %s: %v", op, store.OwnerID(), err)
}
