package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"tasktrack/internal/exitcode"
)

func init() {
	Register(&LoginCmd{})
	Register(&SignupCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct{}

func (c *LoginCmd) Name() string       { return "login" }
func (c *LoginCmd) Aliases() []string  { return []string{"signin"} }
func (c *LoginCmd) Synopsis() string   { return "Sign in with email and password" }
func (c *LoginCmd) Usage() string      { return "tasktrack login <email>" }
func (c *LoginCmd) NeedsBackend() bool { return true }
func (c *LoginCmd) NeedsAuth() bool    { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LoginCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	auth := env.Workspace.Auth()
	if _, signedIn := auth.CurrentUser(); signedIn {
		if !env.Config.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	email, code := emailArg(args, errOut)
	if code != exitcode.Success {
		return code
	}
	password, err := readPassword(env)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	ctx, cancel := bounded(ctx, env)
	defer cancel()
	if _, err := auth.SignIn(ctx, email, password); err != nil {
		return fail(errOut, err)
	}
	return ok(env, out)
}

// SignupCmd creates an account and signs it in.
type SignupCmd struct {
	fullName string
}

func (c *SignupCmd) Name() string       { return "signup" }
func (c *SignupCmd) Aliases() []string  { return []string{"register"} }
func (c *SignupCmd) Synopsis() string   { return "Create an account" }
func (c *SignupCmd) Usage() string      { return "tasktrack signup [--name <full name>] <email>" }
func (c *SignupCmd) NeedsBackend() bool { return true }
func (c *SignupCmd) NeedsAuth() bool    { return false }

func (c *SignupCmd) RegisterFlags(fs *flag.FlagSet) {
	c.fullName = ""
	fs.StringVar(&c.fullName, "name", "", "")
}

// SetFullName sets the account name (for testing).
func (c *SignupCmd) SetFullName(name string) {
	c.fullName = name
}

func (c *SignupCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	email, code := emailArg(args, errOut)
	if code != exitcode.Success {
		return code
	}
	password, err := readPassword(env)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	ctx, cancel := bounded(ctx, env)
	defer cancel()
	if _, err := env.Workspace.Auth().SignUp(ctx, email, password, c.fullName); err != nil {
		return fail(errOut, err)
	}
	return ok(env, out)
}

func emailArg(args []string, errOut io.Writer) (string, int) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: email required")
		return "", exitcode.UserError
	}
	if len(args) > 1 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[1])
		return "", exitcode.UserError
	}
	return args[0], exitcode.Success
}
