package commands

import (
	"context"
	"flag"
	"io"

	"tasktrack/internal/exitcode"
)

func init() {
	Register(&DoneCmd{})
	Register(&UndoCmd{})
}

// DoneCmd implements the done command.
type DoneCmd struct{}

func (c *DoneCmd) Name() string       { return "done" }
func (c *DoneCmd) Aliases() []string  { return nil }
func (c *DoneCmd) Synopsis() string   { return "Mark a task completed" }
func (c *DoneCmd) Usage() string      { return "tasktrack done <ref>" }
func (c *DoneCmd) NeedsBackend() bool { return true }
func (c *DoneCmd) NeedsAuth() bool    { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	return runToggle(ctx, env, args, true, out, errOut)
}

// UndoCmd marks a completed task open again.
type UndoCmd struct{}

func (c *UndoCmd) Name() string       { return "undo" }
func (c *UndoCmd) Aliases() []string  { return []string{"reopen"} }
func (c *UndoCmd) Synopsis() string   { return "Mark a task open" }
func (c *UndoCmd) Usage() string      { return "tasktrack undo <ref>" }
func (c *UndoCmd) NeedsBackend() bool { return true }
func (c *UndoCmd) NeedsAuth() bool    { return true }

func (c *UndoCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *UndoCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	return runToggle(ctx, env, args, false, out, errOut)
}

// runToggle is the shared implementation for done and undo.
func runToggle(ctx context.Context, env *Env, args []string, completed bool, out, errOut io.Writer) int {
	ctx, cancel := bounded(ctx, env)
	defer cancel()

	store, target, code := openTarget(ctx, env, args, errOut)
	if code != exitcode.Success {
		return code
	}
	defer store.Close()

	if err := store.Toggle(ctx, target.ID, completed); err != nil {
		return fail(errOut, err)
	}
	return ok(env, out)
}
