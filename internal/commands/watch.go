package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"tasktrack/internal/changestream"
	"tasktrack/internal/exitcode"
	"tasktrack/internal/output"
	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

func init() {
	Register(&WatchCmd{now: time.Now})
}

// WatchCmd prints the list, then one line per change until interrupted.
type WatchCmd struct {
	now func() time.Time
}

func (c *WatchCmd) Name() string       { return "watch" }
func (c *WatchCmd) Aliases() []string  { return nil }
func (c *WatchCmd) Synopsis() string   { return "Follow changes made anywhere" }
func (c *WatchCmd) Usage() string      { return "tasktrack watch" }
func (c *WatchCmd) NeedsBackend() bool { return true }
func (c *WatchCmd) NeedsAuth() bool    { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WatchCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	now := c.now
	if now == nil {
		now = time.Now
	}

	if err := env.Workspace.Start(ctx); err != nil {
		return fail(errOut, err)
	}
	defer env.Workspace.Stop()

	store, ok := env.Workspace.Store()
	if !ok {
		return fail(errOut, service.ErrNotSignedIn)
	}

	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	prev := store.Tasks()
	if len(prev) == 0 {
		if !env.Config.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
	} else {
		output.FormatTaskList(out, prev)
	}
	if !env.Config.Quiet {
		fmt.Fprintln(errOut, "watching for changes (Ctrl-C to stop)")
	}

	for {
		select {
		case <-ctx.Done():
			return exitcode.Success
		case _, open := <-changes:
			if !open {
				return exitcode.Success
			}
			next := store.Tasks()
			for _, ev := range diff(prev, next) {
				output.FormatEvent(out, now(), ev)
			}
			prev = next
		}
	}
}

// diff returns the events that turn prev into next: deletions first, then
// inserts and updates in list order.
func diff(prev, next []task.Task) []changestream.Event {
	before := make(map[string]task.Task, len(prev))
	for _, t := range prev {
		before[t.ID] = t
	}
	after := make(map[string]struct{}, len(next))
	for _, t := range next {
		after[t.ID] = struct{}{}
	}

	var events []changestream.Event
	for _, t := range prev {
		if _, ok := after[t.ID]; !ok {
			events = append(events, changestream.DeletedEvent(t.ID))
		}
	}
	for _, t := range next {
		old, ok := before[t.ID]
		switch {
		case !ok:
			events = append(events, changestream.InsertedEvent(t))
		case !sameTask(old, t):
			events = append(events, changestream.UpdatedEvent(t))
		}
	}
	return events
}

func sameTask(a, b task.Task) bool {
	if a.Title != b.Title || a.Description != b.Description || a.Completed != b.Completed {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || a.OwnerID != b.OwnerID {
		return false
	}
	if (a.Attachment == nil) != (b.Attachment == nil) {
		return false
	}
	return a.Attachment == nil || *a.Attachment == *b.Attachment
}
