package sqlite

import (
	"context"
	"errors"
	"log"
	"sync"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// ErrSubscriberBehind ends a subscription that stopped draining its
// notifications. Resubscribing and reloading recovers.
var ErrSubscriberBehind = errors.New("subscriber fell behind")

// ErrFeedClosed ends subscriptions when the database is closed.
var ErrFeedClosed = errors.New("change feed closed")

// Feed implements service.ChangeFeed with in-process fan-out.
type Feed struct {
	logger *log.Logger

	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

var _ service.ChangeFeed = (*Feed)(nil)

func newFeed(logger *log.Logger) *Feed {
	return &Feed{logger: logger, subs: make(map[*subscription]struct{})}
}

// Subscribe implements service.ChangeFeed. Only changes to ownerID's rows
// are delivered.
func (f *Feed) Subscribe(ctx context.Context, ownerID string) (service.Subscription, error) {
	s := &subscription{
		feed:    f,
		ownerID: ownerID,
		ch:      make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.end(nil)
		case <-s.done:
		}
	}()
	return s, nil
}

func (f *Feed) publish(changeType string, t task.Task) {
	payload, err := service.EncodeChange(changeType, t)
	if err != nil {
		f.logger.Printf("sqlite: encode %s %s: %v", changeType, t.ID, err)
		return
	}

	var behind []*subscription
	f.mu.RLock()
	for s := range f.subs {
		if s.ownerID != t.OwnerID {
			continue
		}
		if !s.offer(payload) {
			behind = append(behind, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range behind {
		f.logger.Printf("sqlite: dropping slow subscriber for %s", s.ownerID)
		s.end(ErrSubscriberBehind)
	}
}

func (f *Feed) remove(s *subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *Feed) closeAll() {
	f.mu.RLock()
	subs := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.RUnlock()
	for _, s := range subs {
		s.end(ErrFeedClosed)
	}
}

type subscription struct {
	feed    *Feed
	ownerID string
	ch      chan []byte
	done    chan struct{}

	mu    sync.Mutex
	ended bool
	err   error
}

// offer delivers payload without blocking. It reports false when the
// subscriber's buffer is full.
func (s *subscription) offer(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return true
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *subscription) end(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	close(s.ch)
	close(s.done)
	s.mu.Unlock()

	s.feed.remove(s)
}

func (s *subscription) Notifications() <-chan []byte { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.end(nil)
	return nil
}
