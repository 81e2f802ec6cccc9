package commands

import (
	"context"
	"flag"
	"io"

	"tasktrack/internal/exitcode"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
// A task with an attachment is only deleted once its blob is gone.
type RmCmd struct{}

func (c *RmCmd) Name() string       { return "rm" }
func (c *RmCmd) Aliases() []string  { return []string{"delete"} }
func (c *RmCmd) Synopsis() string   { return "Delete a task and its attachment" }
func (c *RmCmd) Usage() string      { return "tasktrack rm <ref>" }
func (c *RmCmd) NeedsBackend() bool { return true }
func (c *RmCmd) NeedsAuth() bool    { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	ctx, cancel := bounded(ctx, env)
	defer cancel()

	store, target, code := openTarget(ctx, env, args, errOut)
	if code != exitcode.Success {
		return code
	}
	defer store.Close()

	if err := store.Remove(ctx, target.ID); err != nil {
		return fail(errOut, err)
	}
	return ok(env, out)
}
