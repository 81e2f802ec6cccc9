package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tasktrack/internal/changestream"
	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	seq := 0
	db, err := Open(":memory:",
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()

	first, err := tasks.Create(ctx, "u1", task.NewTask{Title: "first", Description: "d1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Errorf("expected id and created_at to be set, got %+v", first)
	}
	if first.OwnerID != "u1" || first.Completed {
		t.Errorf("unexpected new task: %+v", first)
	}

	if _, err := tasks.Create(ctx, "u1", task.NewTask{Title: "second"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := tasks.Create(ctx, "u2", task.NewTask{Title: "other owner"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := tasks.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].Title != "second" || got[1].Title != "first" {
		t.Errorf("expected newest first, got %q, %q", got[0].Title, got[1].Title)
	}
	if !task.IsSorted(got) {
		t.Error("list is not in order")
	}
	if got[1].Description != "d1" {
		t.Errorf("description = %q", got[1].Description)
	}
}

func TestListEmpty(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.Tasks().List(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Tasks().Create(context.Background(), "u1", task.NewTask{Title: "   "})
	if !errors.Is(err, task.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	att := &task.Attachment{StoragePath: "u1/x.png", PublicURL: "http://x/u1/x.png", OriginalFileName: "cat.png"}

	created, err := db.Tasks().Create(ctx, "u1", task.NewTask{Title: "with file", Attachment: att})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := db.Tasks().Get(ctx, created.ID, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attachment == nil || *got.Attachment != *att {
		t.Errorf("attachment = %+v, want %+v", got.Attachment, att)
	}
}

func TestGetScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created, err := db.Tasks().Create(ctx, "u1", task.NewTask{Title: "mine"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = db.Tasks().Get(ctx, created.ID, "u2")
	if !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected not found for another owner, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()
	created, err := tasks.Create(ctx, "u1", task.NewTask{Title: "before", Description: "keep"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := tasks.Update(ctx, created.ID, "u1", task.Fields{Completed: task.BoolPtr(true)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := tasks.Update(ctx, created.ID, "u1", task.Fields{Title: task.StringPtr("after")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := tasks.Get(ctx, created.ID, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "after" || got.Description != "keep" || !got.Completed {
		t.Errorf("unexpected row after update: %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", created.CreatedAt, got.CreatedAt)
	}
}

func TestUpdateErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()
	created, err := tasks.Create(ctx, "u1", task.NewTask{Title: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name   string
		id     string
		owner  string
		fields task.Fields
		want   error
	}{
		{"no fields", created.ID, "u1", task.Fields{}, task.ErrValidation},
		{"blank title", created.ID, "u1", task.Fields{Title: task.StringPtr(" ")}, task.ErrValidation},
		{"other owner", created.ID, "u2", task.Fields{Completed: task.BoolPtr(true)}, task.ErrNotFound},
		{"missing id", "nope", "u1", task.Fields{Completed: task.BoolPtr(true)}, task.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tasks.Update(ctx, tt.id, tt.owner, tt.fields)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	got, _ := tasks.Get(ctx, created.ID, "u1")
	if got.Completed {
		t.Error("rejected update changed the row")
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()
	created, err := tasks.Create(ctx, "u1", task.NewTask{Title: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := tasks.Delete(ctx, created.ID, "u2"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("delete by another owner: got %v", err)
	}
	if err := tasks.Delete(ctx, created.ID, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tasks.Delete(ctx, created.ID, "u1"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func recv(t *testing.T, sub service.Subscription) changestream.Event {
	t.Helper()
	select {
	case payload, ok := <-sub.Notifications():
		if !ok {
			t.Fatal("subscription ended")
		}
		ev, err := changestream.Decode(payload, "u1")
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return changestream.Event{}
}

func TestFeedDeliversOwnerChanges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()

	sub, err := db.Feed().Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if _, err := tasks.Create(ctx, "u2", task.NewTask{Title: "not for u1"}); err != nil {
		t.Fatal(err)
	}
	created, err := tasks.Create(ctx, "u1", task.NewTask{Title: "mine"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tasks.Update(ctx, created.ID, "u1", task.Fields{Completed: task.BoolPtr(true)}); err != nil {
		t.Fatal(err)
	}
	if err := tasks.Delete(ctx, created.ID, "u1"); err != nil {
		t.Fatal(err)
	}

	if ev := recv(t, sub); ev.Kind != changestream.Inserted || ev.Task.Title != "mine" {
		t.Errorf("first event = %+v", ev)
	}
	if ev := recv(t, sub); ev.Kind != changestream.Updated || !ev.Task.Completed {
		t.Errorf("second event = %+v", ev)
	}
	if ev := recv(t, sub); ev.Kind != changestream.Deleted || ev.ID != created.ID {
		t.Errorf("third event = %+v", ev)
	}
}

func TestFeedEndsWithContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := db.Feed().Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.Notifications():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
	if err := sub.Close(); err != nil {
		t.Errorf("Close after end: %v", err)
	}
}

func TestFeedDropsSlowSubscriber(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sub, err := db.Feed().Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for i := 0; i < 70; i++ {
		if _, err := db.Tasks().Create(ctx, "u1", task.NewTask{Title: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	n := 0
	for range sub.Notifications() {
		n++
	}
	if n != 64 {
		t.Errorf("delivered %d notifications before ending, want 64", n)
	}
	if !errors.Is(sub.Err(), ErrSubscriberBehind) {
		t.Errorf("Err() = %v", sub.Err())
	}
}

func TestAccounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	accounts := db.Accounts()

	created, err := accounts.Create(ctx, "Ada@Example.com", "Ada", "hash")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Email != "ada@example.com" {
		t.Errorf("email = %q", created.Email)
	}

	if _, err := accounts.Create(ctx, "ada@example.com", "Other", "hash2"); !errors.Is(err, service.ErrAccountExists) {
		t.Errorf("duplicate: got %v", err)
	}

	found, err := accounts.FindByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if found.ID != created.ID || found.PasswordHash != "hash" || found.FullName != "Ada" {
		t.Errorf("found = %+v", found)
	}

	if _, err := accounts.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, service.ErrAccountNotFound) {
		t.Errorf("missing: got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.Tasks().Create(context.Background(), "u1", task.NewTask{Title: "persisted"}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()

	got, err := db.Tasks().List(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected the row to survive reopening, got %d rows", len(got))
	}
}
