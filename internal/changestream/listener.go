package changestream

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// Fetcher loads a row whose notification was truncated.
type Fetcher interface {
	Get(ctx context.Context, id, ownerID string) (task.Task, error)
}

// Listener consumes one subscription for one owner.
// It is not restartable: once Events is closed, open a new Listener.
type Listener struct {
	ownerID string
	sub     service.Subscription
	fetch   Fetcher
	logger  *log.Logger
	events  chan Event

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger for dropped and malformed notifications.
func WithLogger(l *log.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// WithFetcher sets the row source used for truncated notifications.
// Without one, truncated notifications are dropped.
func WithFetcher(f Fetcher) Option {
	return func(ln *Listener) { ln.fetch = f }
}

// Listen subscribes to feed for ownerID and starts decoding.
func Listen(ctx context.Context, feed service.ChangeFeed, ownerID string, opts ...Option) (*Listener, error) {
	if ownerID == "" {
		return nil, task.Validationf("owner id is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := feed.Subscribe(ctx, ownerID)
	if err != nil {
		cancel()
		return nil, task.Transport("subscribe", err)
	}

	l := &Listener{
		ownerID: ownerID,
		sub:     sub,
		logger:  log.New(io.Discard, "", 0),
		events:  make(chan Event, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.run(ctx)
	return l, nil
}

// Events returns the decoded event sequence. It is closed when the
// subscription ends or the Listener is closed.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// Done is closed once the subscription has been released.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops the listener and waits for the subscription to be released.
// It returns the subscription's Close error; calling it again returns the same.
func (l *Listener) Close() error {
	l.cancel()
	<-l.done
	return l.closeErr
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer close(l.events)
	defer l.release()

	notes := l.sub.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-notes:
			if !ok {
				if err := l.sub.Err(); err != nil {
					l.logger.Printf("changestream: subscription ended: %v", err)
				}
				return
			}
			ev, ok := l.decode(ctx, payload)
			if !ok {
				continue
			}
			select {
			case l.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Listener) decode(ctx context.Context, payload []byte) (Event, bool) {
	ev, err := Decode(payload, l.ownerID)
	switch {
	case err == nil:
		return ev, true
	case errors.Is(err, ErrTruncated):
		return l.resolve(ctx, ev)
	case errors.Is(err, ErrForeignOwner):
		l.logger.Printf("changestream: discarded %v", err)
	default:
		l.logger.Printf("changestream: %v", err)
	}
	return Event{}, false
}

// resolve fetches the full row behind a truncated notification.
func (l *Listener) resolve(ctx context.Context, ev Event) (Event, bool) {
	if l.fetch == nil {
		l.logger.Printf("changestream: dropped truncated %s for %s", ev.Kind, ev.ID)
		return Event{}, false
	}
	t, err := l.fetch.Get(ctx, ev.ID, l.ownerID)
	if err != nil {
		// A row deleted since the notification will arrive as its own Deleted event.
		if !errors.Is(err, task.ErrNotFound) {
			l.logger.Printf("changestream: fetch %s: %v", ev.ID, err)
		}
		return Event{}, false
	}
	if t.OwnerID != l.ownerID {
		return Event{}, false
	}
	ev.Task = t
	return ev, true
}

func (l *Listener) release() {
	l.closeOnce.Do(func() {
		l.closeErr = l.sub.Close()
	})
}
