package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"tasktrack/internal/exitcode"
	"tasktrack/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func init() {
	Register(&ServeCmd{})
}

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	addr string
}

func (c *ServeCmd) Name() string       { return "serve" }
func (c *ServeCmd) Aliases() []string  { return nil }
func (c *ServeCmd) Synopsis() string   { return "Serve the JSON/SSE API" }
func (c *ServeCmd) Usage() string      { return "tasktrack serve [--addr <host:port>]" }
func (c *ServeCmd) NeedsBackend() bool { return true }
func (c *ServeCmd) NeedsAuth() bool    { return false }

func (c *ServeCmd) RegisterFlags(fs *flag.FlagSet) {
	c.addr = ""
	fs.StringVar(&c.addr, "addr", "", "")
}

// SetAddr sets the listen address (for testing).
func (c *ServeCmd) SetAddr(addr string) {
	c.addr = addr
}

func (c *ServeCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	if env.Sessions == nil {
		fmt.Fprintln(errOut, "error: sessions are not configured")
		return exitcode.AuthError
	}
	addr := c.addr
	if addr == "" {
		addr = env.Config.ListenAddr
	}

	opts := []httpapi.Option{}
	if env.Logger != nil {
		opts = append(opts, httpapi.WithLogger(env.Logger))
	}
	if env.Files != nil {
		opts = append(opts, httpapi.WithFiles(env.Files))
	}
	api := httpapi.New(env.Workspace, env.Sessions, opts...)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		api.Close()
		fmt.Fprintf(errOut, "error: listen: %v\n", err)
		return exitcode.UserError
	}

	srv := &http.Server{Handler: api, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	if !env.Config.Quiet {
		fmt.Fprintf(out, "serving on http://%s\n", ln.Addr())
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		api.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return exitcode.Success
		}
		return fail(errOut, err)
	}

	// Closing the stores ends open event streams so Shutdown can drain.
	api.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(errOut, "error: shutdown: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
