package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasktrack/internal/exitcode"
)

func init() {
	Register(&EditCmd{})
}

// EditCmd changes the title and/or description of a task.
// Fields without a flag keep their current value.
type EditCmd struct {
	title       stringFlag
	description stringFlag
}

func (c *EditCmd) Name() string       { return "edit" }
func (c *EditCmd) Aliases() []string  { return nil }
func (c *EditCmd) Synopsis() string   { return "Change a task's title or description" }
func (c *EditCmd) Usage() string      { return "tasktrack edit [--title <text>] [--desc <text>] <ref>" }
func (c *EditCmd) NeedsBackend() bool { return true }
func (c *EditCmd) NeedsAuth() bool    { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.title, c.description = stringFlag{}, stringFlag{}
	fs.Var(&c.title, "title", "")
	fs.Var(&c.title, "t", "")
	fs.Var(&c.description, "desc", "")
	fs.Var(&c.description, "d", "")
}

func (c *EditCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	if !c.title.set && !c.description.set {
		fmt.Fprintln(errOut, "error: nothing to change (use --title or --desc)")
		return exitcode.UserError
	}

	ctx, cancel := bounded(ctx, env)
	defer cancel()

	store, target, code := openTarget(ctx, env, args, errOut)
	if code != exitcode.Success {
		return code
	}
	defer store.Close()

	title, desc := target.Title, target.Description
	if c.title.set {
		title = c.title.value
	}
	if c.description.set {
		desc = c.description.value
	}

	if err := store.Edit(ctx, target.ID, title, desc); err != nil {
		return fail(errOut, err)
	}
	return ok(env, out)
}
