// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tasktrack/internal/task"
)

// BaseTime is the creation time of the first task a FakeGateway creates.
// Each later task is one minute newer.
var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Call records one gateway invocation.
type Call struct {
	Op      string
	ID      string
	OwnerID string
	Fields  task.Fields
	New     task.NewTask
}

// FakeGateway is an in-memory implementation of service.Gateway for testing.
type FakeGateway struct {
	mu    sync.Mutex
	rows  map[string]task.Task
	calls []Call
	seq   int

	// Error injection for testing
	ListErr   error
	GetErr    error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// OnUpdate runs before an update is applied or rejected, without the lock
	// held. Tests use it to interleave change stream events.
	OnUpdate func(id string, fields task.Fields)

	// OnList runs after List has taken its snapshot and before it returns,
	// without the lock held.
	OnList func()

	// Ops, when set, receives "row:<op>:<id>" entries.
	Ops *OpLog
}

// NewFakeGateway creates an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{rows: make(map[string]task.Task)}
}

// Put stores t directly, bypassing Create.
func (f *FakeGateway) Put(t task.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.ID] = t.Clone()
}

// Row returns the stored row with id.
func (f *FakeGateway) Row(id string) (task.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	return t.Clone(), ok
}

// Calls returns the recorded calls in order.
func (f *FakeGateway) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times op was called.
func (f *FakeGateway) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeGateway) record(c Call) {
	f.calls = append(f.calls, c)
	if f.Ops != nil {
		f.Ops.Record("row:" + c.Op + ":" + c.ID)
	}
}

// List implements service.Gateway.
func (f *FakeGateway) List(ctx context.Context, ownerID string) ([]task.Task, error) {
	out, err := f.snapshot(ownerID)
	if f.OnList != nil {
		f.OnList()
	}
	return out, err
}

func (f *FakeGateway) snapshot(ownerID string) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "list", OwnerID: ownerID})
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	out := []task.Task{}
	for _, t := range f.rows {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	task.SortNewestFirst(out)
	return out, nil
}

// Get implements service.Gateway.
func (f *FakeGateway) Get(ctx context.Context, id, ownerID string) (task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "get", ID: id, OwnerID: ownerID})
	if f.GetErr != nil {
		return task.Task{}, f.GetErr
	}
	t, ok := f.rows[id]
	if !ok || t.OwnerID != ownerID {
		return task.Task{}, task.NotFound(id)
	}
	return t.Clone(), nil
}

// Create implements service.Gateway.
func (f *FakeGateway) Create(ctx context.Context, ownerID string, in task.NewTask) (task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "create", OwnerID: ownerID, New: in})
	if f.CreateErr != nil {
		return task.Task{}, f.CreateErr
	}
	if err := task.ValidateTitle(in.Title); err != nil {
		return task.Task{}, err
	}

	f.seq++
	t := task.Task{
		ID:          fmt.Sprintf("task-%03d", f.seq),
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   BaseTime.Add(time.Duration(f.seq) * time.Minute),
		OwnerID:     ownerID,
	}
	if in.Attachment != nil {
		a := *in.Attachment
		t.Attachment = &a
	}
	f.rows[t.ID] = t
	return t.Clone(), nil
}

// Update implements service.Gateway.
func (f *FakeGateway) Update(ctx context.Context, id, ownerID string, fields task.Fields) error {
	if f.OnUpdate != nil {
		f.OnUpdate(id, fields)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "update", ID: id, OwnerID: ownerID, Fields: fields})
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if fields.IsEmpty() {
		return task.Validationf("no fields to update")
	}
	t, ok := f.rows[id]
	if !ok || t.OwnerID != ownerID {
		return task.NotFound(id)
	}
	f.rows[id] = fields.Apply(t)
	return nil
}

// Delete implements service.Gateway.
func (f *FakeGateway) Delete(ctx context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "delete", ID: id, OwnerID: ownerID})
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	t, ok := f.rows[id]
	if !ok || t.OwnerID != ownerID {
		return task.NotFound(id)
	}
	delete(f.rows, id)
	return nil
}

// OpLog records operations across fakes so tests can assert ordering.
type OpLog struct {
	mu  sync.Mutex
	ops []string
}

// Record appends op.
func (l *OpLog) Record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Ops returns the recorded operations in order.
func (l *OpLog) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

// SortedIDs returns the ids of tasks, sorted. Handy for order-insensitive checks.
func SortedIDs(tasks []task.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	sort.Strings(ids)
	return ids
}

// IDs returns the ids of tasks in order.
func IDs(tasks []task.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
