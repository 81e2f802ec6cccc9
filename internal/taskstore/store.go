// Package taskstore owns the in-memory task list of one signed-in user and
// keeps it consistent with the remote store.
//
// Command results and change stream events both go through the same merge:
// id-keyed, last writer wins, idempotent. Ordering between the two sources is
// never assumed; any interleaving converges to the same list.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"tasktrack/internal/attachment"
	"tasktrack/internal/changestream"
	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// ErrorHandler receives failures that are logged rather than returned, and
// every failure of a mutating command.
type ErrorHandler func(op string, err error)

// Store is the canonical task list for one owner.
// A Store is scoped to a single session; create a new one on sign-in.
type Store struct {
	ownerID  string
	gateway  service.Gateway
	pipeline *attachment.Pipeline
	logger   *log.Logger
	onError  ErrorHandler

	mu         sync.RWMutex
	tasks      []task.Task
	loading    bool
	closed     bool
	tombstones map[string]struct{}
	subs       map[chan struct{}]struct{}

	// journals holds one entry per refresh in flight. Every local change
	// made while List runs is recorded there and replayed over the snapshot.
	journals map[*journal]struct{}
}

// journal is the latest local state of each row touched during a refresh.
type journal struct {
	rows map[string]task.Task
}

// Option configures a Store.
type Option func(*Store)

// WithPipeline enables attachments.
func WithPipeline(p *attachment.Pipeline) Option {
	return func(s *Store) { s.pipeline = p }
}

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithErrorHandler sets the error channel. The default logs.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Store) { s.onError = fn }
}

// New creates an empty Store for ownerID.
func New(ownerID string, gateway service.Gateway, opts ...Option) *Store {
	s := &Store{
		ownerID:    ownerID,
		gateway:    gateway,
		logger:     log.New(io.Discard, "", 0),
		tombstones: make(map[string]struct{}),
		subs:       make(map[chan struct{}]struct{}),
		journals:   make(map[*journal]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onError == nil {
		s.onError = func(op string, err error) {
			s.logger.Printf("taskstore: %s: %v", op, err)
		}
	}
	return s
}

// OwnerID returns the session owner this store is scoped to.
func (s *Store) OwnerID() string {
	return s.ownerID
}

// Tasks returns a copy of the current list, newest first.
func (s *Store) Tasks() []task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Find returns the task with id, if present.
func (s *Store) Find(id string) (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return task.Task{}, false
}

// Loading reports whether a refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Refresh replaces the list with the remote one. Changes merged while the
// list is being fetched are kept on top of it. On failure the previous list
// is kept, the error goes to the error channel and is returned.
func (s *Store) Refresh(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	j := s.beginJournal()
	defer s.endJournal(j)

	tasks, err := s.gateway.List(ctx, s.ownerID)
	if err != nil {
		s.onError("refresh", err)
		return err
	}
	s.replace(tasks, j)
	return nil
}

// Add creates a task. When file is set it is uploaded first; an upload
// failure aborts before the gateway is called.
func (s *Store) Add(ctx context.Context, title, description string, file *task.File) (task.Task, error) {
	if err := task.ValidateTitle(title); err != nil {
		return task.Task{}, err
	}

	var att *task.Attachment
	if file != nil {
		if s.pipeline == nil {
			return task.Task{}, task.Validationf("attachments are not configured")
		}
		a, err := s.pipeline.Upload(ctx, s.ownerID, *file)
		if err != nil {
			s.onError("add", err)
			return task.Task{}, err
		}
		att = &a
	}

	created, err := s.gateway.Create(ctx, s.ownerID, task.NewTask{
		Title:       title,
		Description: description,
		Attachment:  att,
	})
	if err != nil {
		if att != nil {
			// The row never existed, so nothing references the blob.
			if rerr := s.pipeline.Remove(ctx, att.StoragePath); rerr != nil {
				s.logger.Printf("taskstore: orphaned blob %s: %v", att.StoragePath, rerr)
			}
		}
		s.onError("add", err)
		return task.Task{}, err
	}

	s.Apply(changestream.InsertedEvent(created))
	return created, nil
}

// Toggle sets the completed flag. Only completed is sent to the gateway.
func (s *Store) Toggle(ctx context.Context, id string, completed bool) error {
	return s.patch(ctx, "toggle", id, task.Fields{Completed: task.BoolPtr(completed)})
}

// Edit replaces the title and description.
func (s *Store) Edit(ctx context.Context, id, title, description string) error {
	if err := task.ValidateTitle(title); err != nil {
		return err
	}
	return s.patch(ctx, "edit", id, task.Fields{
		Title:       task.StringPtr(title),
		Description: task.StringPtr(description),
	})
}

// Update sends any combination of fields as one gateway call. A title, when
// set, must not be blank.
func (s *Store) Update(ctx context.Context, id string, fields task.Fields) error {
	if fields.IsEmpty() {
		return task.Validationf("no fields to update")
	}
	if fields.Title != nil {
		if err := task.ValidateTitle(*fields.Title); err != nil {
			return err
		}
	}
	return s.patch(ctx, "update", id, fields)
}

// patch applies fields locally, sends them, and rolls the local change back
// if the gateway rejects it. A missing local entry is not an error.
func (s *Store) patch(ctx context.Context, op, id string, fields task.Fields) error {
	prev, patched := s.applyFields(id, fields)

	if err := s.gateway.Update(ctx, id, s.ownerID, fields); err != nil {
		if patched {
			s.rollback(id, fields, prev)
		}
		s.onError(op, err)
		return err
	}
	return nil
}

// Remove deletes a task: blob first, then the row, then the local entry.
// If the blob cannot be removed the row stays and ErrAttachmentDelete is returned.
func (s *Store) Remove(ctx context.Context, id string) error {
	current, err := s.gateway.Get(ctx, id, s.ownerID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			// Already gone remotely; the local copy is stale.
			s.Apply(changestream.DeletedEvent(id))
		}
		s.onError("remove", err)
		return err
	}

	if current.Attachment != nil && current.Attachment.StoragePath != "" {
		if err := s.removeBlob(ctx, current.Attachment.StoragePath); err != nil {
			s.onError("remove", err)
			return err
		}
	}

	if err := s.gateway.Delete(ctx, id, s.ownerID); err != nil {
		s.onError("remove", err)
		return err
	}

	s.Apply(changestream.DeletedEvent(id))
	return nil
}

func (s *Store) removeBlob(ctx context.Context, storagePath string) error {
	if s.pipeline == nil {
		return fmt.Errorf("%w: %s: attachments are not configured", task.ErrAttachmentDelete, storagePath)
	}
	err := s.pipeline.Remove(ctx, storagePath)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrObjectNotFound) {
		// No blob and, shortly, no row: still a consistent end state.
		s.logger.Printf("taskstore: blob %s already missing", storagePath)
		return nil
	}
	return fmt.Errorf("%w: %w", task.ErrAttachmentDelete, err)
}

// Apply merges one event into the list. It reports whether the list changed.
// Applying the same Inserted or Updated event twice changes nothing the
// second time; Deleted for an absent id is a no-op.
func (s *Store) Apply(ev changestream.Event) bool {
	s.mu.Lock()
	changed := s.applyLocked(ev)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// Run applies events until the channel closes or ctx is done.
func (s *Store) Run(ctx context.Context, events <-chan changestream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Apply(ev)
		}
	}
}

// Subscribe returns a channel signalled after every change to the list or
// the loading flag. Signals coalesce; read Tasks for the state. The returned
// func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Close detaches the store from its session. Later merges, including results
// of commands still in flight, are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	changed := !s.closed && s.loading != v
	if changed {
		s.loading = v
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) beginJournal() *journal {
	j := &journal{rows: make(map[string]task.Task)}
	s.mu.Lock()
	s.journals[j] = struct{}{}
	s.mu.Unlock()
	return j
}

func (s *Store) endJournal(j *journal) {
	s.mu.Lock()
	delete(s.journals, j)
	s.mu.Unlock()
}

// recordLocked notes t as the newest local state of its row in every open
// journal.
func (s *Store) recordLocked(t task.Task) {
	for j := range s.journals {
		j.rows[t.ID] = t.Clone()
	}
}

func (s *Store) forgetLocked(id string) {
	for j := range s.journals {
		delete(j.rows, id)
	}
}

// replace swaps in a fresh remote list, then replays the rows j recorded
// while the list was in flight. Deletes are covered by the tombstones.
func (s *Store) replace(remote []task.Task, j *journal) {
	next := make([]task.Task, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, t := range remote {
		if t.OwnerID != s.ownerID {
			s.logger.Printf("taskstore: refresh dropped %s owned by %q", t.ID, t.OwnerID)
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		next = append(next, t.Clone())
	}
	task.SortNewestFirst(next)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	filtered := next[:0]
	for _, t := range next {
		if _, dead := s.tombstones[t.ID]; !dead {
			filtered = append(filtered, t)
		}
	}
	s.tasks = filtered
	for id, t := range j.rows {
		if _, dead := s.tombstones[id]; !dead {
			s.upsertLocked(t.Clone())
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) applyLocked(ev changestream.Event) bool {
	if s.closed {
		return false
	}
	switch ev.Kind {
	case changestream.Inserted, changestream.Updated:
		t := ev.Task
		if t.ID == "" {
			return false
		}
		if t.OwnerID != s.ownerID {
			s.logger.Printf("taskstore: dropped %s %s owned by %q", ev.Kind, t.ID, t.OwnerID)
			return false
		}
		if _, dead := s.tombstones[t.ID]; dead {
			return false
		}
		s.recordLocked(t)
		return s.upsertLocked(t.Clone())
	case changestream.Deleted:
		if ev.ID == "" {
			return false
		}
		s.tombstones[ev.ID] = struct{}{}
		s.forgetLocked(ev.ID)
		return s.deleteLocked(ev.ID)
	default:
		return false
	}
}

func (s *Store) upsertLocked(t task.Task) bool {
	if i := s.indexLocked(t.ID); i >= 0 {
		old := s.tasks[i]
		if equal(old, t) {
			return false
		}
		if old.CreatedAt.Equal(t.CreatedAt) {
			s.tasks[i] = t
			return true
		}
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	}

	at := sort.Search(len(s.tasks), func(i int) bool {
		return task.Before(t, s.tasks[i])
	})
	s.tasks = append(s.tasks, task.Task{})
	copy(s.tasks[at+1:], s.tasks[at:])
	s.tasks[at] = t
	return true
}

func (s *Store) deleteLocked(id string) bool {
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return true
}

// applyFields patches the local entry and returns the overwritten values.
func (s *Store) applyFields(id string, fields task.Fields) (task.Fields, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return task.Fields{}, false
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return task.Fields{}, false
	}
	prev := fields.Capture(s.tasks[i])
	s.tasks[i] = fields.Apply(s.tasks[i])
	s.recordLocked(s.tasks[i])
	s.mu.Unlock()

	s.notify()
	return prev, true
}

// rollback restores prev on fields that still hold the patched value. Fields
// changed since by the change stream are left alone.
func (s *Store) rollback(id string, fields, prev task.Fields) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	var undo task.Fields
	cur := s.tasks[i]
	if fields.Title != nil && cur.Title == *fields.Title {
		undo.Title = prev.Title
	}
	if fields.Description != nil && cur.Description == *fields.Description {
		undo.Description = prev.Description
	}
	if fields.Completed != nil && cur.Completed == *fields.Completed {
		undo.Completed = prev.Completed
	}
	if undo.IsEmpty() {
		s.mu.Unlock()
		return
	}
	s.tasks[i] = undo.Apply(cur)
	s.recordLocked(s.tasks[i])
	s.mu.Unlock()

	s.notify()
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func equal(a, b task.Task) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Description != b.Description ||
		a.Completed != b.Completed || !a.CreatedAt.Equal(b.CreatedAt) || a.OwnerID != b.OwnerID {
		return false
	}
	if (a.Attachment == nil) != (b.Attachment == nil) {
		return false
	}
	return a.Attachment == nil || *a.Attachment == *b.Attachment
}
