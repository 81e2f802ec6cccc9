package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tasktrack/internal/service"
)

// Feed implements service.ChangeFeed with LISTEN/NOTIFY. Each subscription
// holds one pool connection for its lifetime.
type Feed struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ service.ChangeFeed = (*Feed)(nil)

// Subscribe implements service.ChangeFeed.
func (f *Feed) Subscribe(ctx context.Context, ownerID string) (service.Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	channel := pgx.Identifier{channelFor(ownerID)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		conn:    conn,
		channel: channel,
		logger:  f.logger,
		ch:      make(chan []byte, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

type subscription struct {
	conn    *pgxpool.Conn
	channel string
	logger  *log.Logger
	ch      chan []byte
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	defer s.release()

	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}
		select {
		case s.ch <- []byte(n.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// release stops listening and returns the connection to the pool. A wait
// interrupted by cancellation leaves the connection closed; the pool then
// discards it.
func (s *subscription) release() {
	if !s.conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := s.conn.Exec(ctx, "UNLISTEN "+s.channel); err != nil {
			s.logger.Printf("postgres: unlisten %s: %v", s.channel, err)
		}
		cancel()
	}
	s.conn.Release()
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *subscription) Notifications() <-chan []byte { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	err := s.Err()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
