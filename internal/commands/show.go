package commands

import (
	"context"
	"flag"
	"io"

	"tasktrack/internal/exitcode"
	"tasktrack/internal/output"
)

func init() {
	Register(&ShowCmd{})
}

// ShowCmd prints every field of one task, including its attachment.
type ShowCmd struct{}

func (c *ShowCmd) Name() string       { return "show" }
func (c *ShowCmd) Aliases() []string  { return nil }
func (c *ShowCmd) Synopsis() string   { return "Show task details" }
func (c *ShowCmd) Usage() string      { return "tasktrack show <ref>" }
func (c *ShowCmd) NeedsBackend() bool { return true }
func (c *ShowCmd) NeedsAuth() bool    { return true }

func (c *ShowCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ShowCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	ctx, cancel := bounded(ctx, env)
	defer cancel()

	store, target, code := openTarget(ctx, env, args, errOut)
	if code != exitcode.Success {
		return code
	}
	defer store.Close()

	output.FormatDetail(out, target)
	return exitcode.Success
}
