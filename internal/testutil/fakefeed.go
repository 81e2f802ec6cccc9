package testutil

import (
	"context"
	"sync"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// FakeFeed is an in-memory implementation of service.ChangeFeed for testing.
type FakeFeed struct {
	mu   sync.Mutex
	subs []*FakeSubscription

	// Error injection for testing
	SubscribeErr error
}

// NewFakeFeed creates a FakeFeed.
func NewFakeFeed() *FakeFeed {
	return &FakeFeed{}
}

// Subscribe implements service.ChangeFeed.
func (f *FakeFeed) Subscribe(ctx context.Context, ownerID string) (service.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	s := &FakeSubscription{OwnerID: ownerID, ch: make(chan []byte, 64)}
	f.subs = append(f.subs, s)
	return s, nil
}

// Subscriptions returns every subscription opened so far.
func (f *FakeFeed) Subscriptions() []*FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeSubscription, len(f.subs))
	copy(out, f.subs)
	return out
}

// Last returns the most recent subscription, or nil.
func (f *FakeFeed) Last() *FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

// FakeSubscription is a service.Subscription driven by the test.
type FakeSubscription struct {
	OwnerID string

	mu     sync.Mutex
	ch     chan []byte
	ended  bool
	err    error
	closes int
}

// Push delivers a raw payload. It is a no-op once the subscription ended.
func (s *FakeSubscription) Push(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ch <- payload
}

// PushChange encodes and delivers a change to t.
func (s *FakeSubscription) PushChange(changeType string, t task.Task) {
	payload, err := service.EncodeChange(changeType, t)
	if err != nil {
		panic(err)
	}
	s.Push(payload)
}

// End terminates the stream from the transport side.
func (s *FakeSubscription) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.ch)
}

// Notifications implements service.Subscription.
func (s *FakeSubscription) Notifications() <-chan []byte {
	return s.ch
}

// Err implements service.Subscription.
func (s *FakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements service.Subscription.
func (s *FakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if !s.ended {
		s.ended = true
		close(s.ch)
	}
	return nil
}

// Closes returns how many times Close was called.
func (s *FakeSubscription) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
