// Package commands provides the command interface and implementations.
package commands

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"tasktrack/internal/config"
	"tasktrack/internal/exitcode"
	"tasktrack/internal/httpapi"
	"tasktrack/internal/workspace"
)

// PasswordEnv names the environment variable read before prompting on stdin.
const PasswordEnv = "TASKTRACK_PASSWORD"

// Env is what a command runs against.
// Workspace and Sessions are nil when NeedsBackend() returns false.
type Env struct {
	Config    *config.Config
	Workspace *workspace.Workspace

	// Sessions issues tokens for the HTTP API.
	Sessions httpapi.Authenticator

	// Files serves locally stored blobs; nil when blobs live elsewhere.
	Files http.Handler

	Stdin  io.Reader
	Logger *log.Logger
}

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsBackend returns true if the command talks to the task store.
	// Commands like help and version return false.
	NeedsBackend() bool

	// NeedsAuth returns true if the command requires a signed-in session.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int
}

// fail prints err and returns the matching exit code.
func fail(errOut io.Writer, err error) int {
	code := exitcode.FromError(err)
	if code == exitcode.BackendError {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
	} else {
		fmt.Fprintf(errOut, "error: %v\n", err)
	}
	return code
}

// bounded applies the configured API timeout to a one-shot command.
func bounded(ctx context.Context, env *Env) (context.Context, context.CancelFunc) {
	if env.Config.APITimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, env.Config.APITimeout)
}

func ok(env *Env, out io.Writer) int {
	if !env.Config.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

var errNoPassword = errors.New("password required (set " + PasswordEnv + " or pipe it on stdin)")

// readPassword returns PasswordEnv if non-empty, otherwise the first line
// of stdin.
func readPassword(env *Env) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	if env.Stdin == nil {
		return "", errNoPassword
	}
	line, err := bufio.NewReader(env.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errNoPassword
	}
	return pw, nil
}

// stringFlag is a string flag that records whether it was given.
type stringFlag struct {
	value string
	set   bool
}

func (f *stringFlag) String() string { return f.value }

func (f *stringFlag) Set(s string) error {
	f.value, f.set = s, true
	return nil
}
