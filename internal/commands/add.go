package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tasktrack/internal/exitcode"
	"tasktrack/internal/task"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	description string
	filePath    string
}

// SetDescription sets the description (for testing).
func (c *AddCmd) SetDescription(d string) {
	c.description = d
}

// SetFile sets the attachment path (for testing).
func (c *AddCmd) SetFile(path string) {
	c.filePath = path
}

func (c *AddCmd) Name() string       { return "add" }
func (c *AddCmd) Aliases() []string  { return []string{"create"} }
func (c *AddCmd) Synopsis() string   { return "Create a task" }
func (c *AddCmd) Usage() string      { return "tasktrack add [--desc <text>] [--file <path>] <title...>" }
func (c *AddCmd) NeedsBackend() bool { return true }
func (c *AddCmd) NeedsAuth() bool    { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	c.description, c.filePath = "", ""
	fs.StringVar(&c.description, "desc", "", "")
	fs.StringVar(&c.description, "d", "", "")
	fs.StringVar(&c.filePath, "file", "", "")
	fs.StringVar(&c.filePath, "f", "", "")
}

func (c *AddCmd) Run(ctx context.Context, env *Env, args []string, out, errOut io.Writer) int {
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	var file *task.File
	if c.filePath != "" {
		f, err := readFile(c.filePath)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		file = f
	} else {
		// Uploads are bounded by the blob store's own timeout.
		var cancel context.CancelFunc
		ctx, cancel = bounded(ctx, env)
		defer cancel()
	}

	store, err := env.Workspace.Open(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	defer store.Close()

	created, err := store.Add(ctx, title, c.description, file)
	if err != nil {
		return fail(errOut, err)
	}

	if !env.Config.Quiet {
		fmt.Fprintf(out, "ok %s\n", created.ID)
	}
	return exitcode.Success
}

// readFile loads an attachment from disk. The content type comes from the
// extension, falling back to sniffing the first bytes.
func readFile(path string) (*task.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &task.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
