package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack/internal/changestream"
	"tasktrack/internal/service"
	"tasktrack/internal/task"
	"tasktrack/internal/testutil"
)

var alice = service.User{ID: "alice", Email: "alice@example.com"}
var bob = service.User{ID: "bob", Email: "bob@example.com"}

func rowFor(owner, id string, minute int) task.Task {
	return task.Task{
		ID:        id,
		Title:     id,
		CreatedAt: testutil.BaseTime.Add(time.Duration(minute) * time.Minute),
		OwnerID:   owner,
	}
}

type harness struct {
	auth *testutil.FakeAuth
	gw   *testutil.FakeGateway
	feed *testutil.FakeFeed
	ws   *Workspace
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth: testutil.NewFakeAuth(),
		gw:   testutil.NewFakeGateway(),
		feed: testutil.NewFakeFeed(),
	}
	h.ws = New(h.auth, Backend{Gateway: h.gw, Feed: h.feed}, WithRetryDelay(10*time.Millisecond))
	t.Cleanup(h.ws.Stop)
	return h
}

func TestOpenRequiresSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.ws.Open(context.Background())
	assert.ErrorIs(t, err, service.ErrNotSignedIn)
}

func TestOpenLoadsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("alice", "a1", 1))
	h.gw.Put(rowFor("bob", "b1", 2))
	h.auth.Set(alice, true)

	store, err := h.ws.Open(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, []string{"a1"}, testutil.IDs(store.Tasks()))
	assert.Empty(t, h.feed.Subscriptions())
}

func TestOpenRefreshFailure(t *testing.T) {
	h := newHarness(t)
	h.auth.Set(alice, true)
	h.gw.ListErr = task.Transport("list", errors.New("timeout"))

	_, err := h.ws.Open(context.Background())
	assert.ErrorIs(t, err, task.ErrTransport)
}

func TestStartFollowsChangeStream(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("alice", "a1", 1))
	h.auth.Set(alice, true)

	require.NoError(t, h.ws.Start(context.Background()))

	store, ok := h.ws.Store()
	require.True(t, ok)
	assert.Equal(t, []string{"a1"}, testutil.IDs(store.Tasks()))

	sub := h.feed.Last()
	require.NotNil(t, sub)
	assert.Equal(t, "alice", sub.OwnerID)
	sub.PushChange(service.ChangeInsert, rowFor("alice", "a2", 2))

	assert.Eventually(t, func() bool {
		return len(store.Tasks()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a2", "a1"}, testutil.IDs(store.Tasks()))
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ws.Start(context.Background()))
	assert.Error(t, h.ws.Start(context.Background()))
}

func TestSignInAfterStart(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("alice", "a1", 1))
	require.NoError(t, h.ws.Start(context.Background()))

	_, ok := h.ws.Store()
	assert.False(t, ok)

	_, err := h.auth.SignIn(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)

	store, ok := h.ws.Store()
	require.True(t, ok)
	assert.Equal(t, "user-alice@example.com", store.OwnerID())
	require.Len(t, h.feed.Subscriptions(), 1)
}

func TestSignOutReleasesListenerOnce(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("alice", "a1", 1))
	h.auth.Set(alice, true)
	require.NoError(t, h.ws.Start(context.Background()))
	store, _ := h.ws.Store()
	sub := h.feed.Last()

	h.auth.Set(service.User{}, false)

	_, ok := h.ws.Store()
	assert.False(t, ok)
	assert.Equal(t, 1, sub.Closes())

	store.Apply(changestream.InsertedEvent(rowFor("alice", "late", 5)))
	assert.Equal(t, []string{"a1"}, testutil.IDs(store.Tasks()))

	h.ws.Stop()
	assert.Equal(t, 1, sub.Closes())
}

func TestSwitchingUsersReplacesStore(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("alice", "a1", 1))
	h.gw.Put(rowFor("bob", "b1", 2))
	h.auth.Set(alice, true)
	require.NoError(t, h.ws.Start(context.Background()))
	first := h.feed.Last()

	h.auth.Set(bob, true)

	store, ok := h.ws.Store()
	require.True(t, ok)
	assert.Equal(t, "bob", store.OwnerID())
	assert.Equal(t, []string{"b1"}, testutil.IDs(store.Tasks()))
	assert.Equal(t, 1, first.Closes())
	assert.Equal(t, "bob", h.feed.Last().OwnerID)

	// A late event for the previous owner never reaches the new store.
	first.PushChange(service.ChangeInsert, rowFor("alice", "a2", 3))
	assert.Equal(t, []string{"b1"}, testutil.IDs(store.Tasks()))
}

func TestResubscribesWhenStreamEnds(t *testing.T) {
	h := newHarness(t)
	h.auth.Set(alice, true)
	require.NoError(t, h.ws.Start(context.Background()))
	first := h.feed.Last()

	// Written while disconnected; only the reload after resubscribing sees it.
	h.gw.Put(rowFor("alice", "missed", 1))
	first.End(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		return len(h.feed.Subscriptions()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, first.Closes())

	store, _ := h.ws.Store()
	assert.Eventually(t, func() bool {
		return len(store.Tasks()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeFailureIsReported(t *testing.T) {
	h := newHarness(t)
	var ops []string
	h.ws = New(h.auth, Backend{Gateway: h.gw, Feed: h.feed},
		WithRetryDelay(time.Hour),
		WithErrorHandler(func(op string, err error) { ops = append(ops, op) }),
	)
	h.feed.SubscribeErr = errors.New("refused")
	h.auth.Set(alice, true)

	require.NoError(t, h.ws.Start(context.Background()))
	h.ws.Stop()

	assert.Equal(t, []string{"listen"}, ops)
}

func TestStopUnsubscribesFromAuth(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ws.Start(context.Background()))
	assert.Equal(t, 1, h.auth.Listeners())

	h.ws.Stop()
	assert.Equal(t, 0, h.auth.Listeners())
}

func TestSnapshotOnlyWithoutFeed(t *testing.T) {
	auth := testutil.NewFakeAuth()
	gw := testutil.NewFakeGateway()
	gw.Put(rowFor("alice", "a1", 1))
	ws := New(auth, Backend{Gateway: gw})
	auth.Set(alice, true)

	require.NoError(t, ws.Start(context.Background()))
	store, ok := ws.Store()
	require.True(t, ok)
	assert.Len(t, store.Tasks(), 1)

	ws.Stop()
	_, ok = ws.Store()
	assert.False(t, ok)
}

func TestFollowIsIndependentOfSession(t *testing.T) {
	h := newHarness(t)
	h.gw.Put(rowFor("bob", "b1", 1))

	live, err := h.ws.Follow(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, testutil.IDs(live.Store().Tasks()))
	_, ok := h.ws.Store()
	assert.False(t, ok)

	sub := h.feed.Last()
	require.NotNil(t, sub)
	sub.PushChange(service.ChangeInsert, rowFor("bob", "b2", 2))
	assert.Eventually(t, func() bool {
		return len(live.Store().Tasks()) == 2
	}, time.Second, 5*time.Millisecond)

	live.Close()
	assert.Equal(t, 1, sub.Closes())
	live.Close()
	assert.Equal(t, 1, sub.Closes())
}

func TestFollowLoadFailureReleasesListener(t *testing.T) {
	h := newHarness(t)
	h.gw.ListErr = task.Transport("list", errors.New("timeout"))

	_, err := h.ws.Follow(context.Background(), "bob")
	assert.ErrorIs(t, err, task.ErrTransport)
	require.Len(t, h.feed.Subscriptions(), 1)
	assert.Equal(t, 1, h.feed.Last().Closes())
}
