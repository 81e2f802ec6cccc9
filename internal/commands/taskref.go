package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tasktrack/internal/exitcode"
	"tasktrack/internal/task"
	"tasktrack/internal/taskstore"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Num    int    // 1-based position in the newest-first list; 0 if Prefix is set
	Prefix string // task id prefix
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from args.
//
// An all-digit argument is a list position as printed by list. Anything else
// is matched against task ids by prefix; ids that start with a digit need a
// prefix with at least one letter or dash.
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}
	if len(args) > 1 {
		return TaskRef{}, fmt.Errorf("unexpected argument: %s", args[1])
	}

	arg := strings.TrimSpace(args[0])
	if arg == "" {
		return TaskRef{}, ErrTaskRefRequired
	}
	if isAllDigits(arg) {
		num, err := strconv.Atoi(arg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		if num < 1 {
			return TaskRef{}, fmt.Errorf("task number out of range: %d", num)
		}
		return TaskRef{Num: num}, nil
	}
	return TaskRef{Prefix: arg}, nil
}

// Resolve finds the referenced task in tasks.
func (r TaskRef) Resolve(tasks []task.Task) (task.Task, error) {
	if r.Prefix == "" {
		if r.Num < 1 || r.Num > len(tasks) {
			return task.Task{}, fmt.Errorf("task number out of range: %d", r.Num)
		}
		return tasks[r.Num-1], nil
	}

	var match task.Task
	n := 0
	for _, t := range tasks {
		if t.ID == r.Prefix {
			return t, nil
		}
		if strings.HasPrefix(t.ID, r.Prefix) {
			match = t
			n++
		}
	}
	switch n {
	case 0:
		return task.Task{}, fmt.Errorf("task not found: %s", r.Prefix)
	case 1:
		return match, nil
	default:
		return task.Task{}, fmt.Errorf("ambiguous task reference: %s", r.Prefix)
	}
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// openTarget opens the caller's store and resolves the task named by args.
// On failure it prints the error and returns a non-zero exit code; on
// success the caller closes the store.
func openTarget(ctx context.Context, env *Env, args []string, errOut io.Writer) (*taskstore.Store, task.Task, int) {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return nil, task.Task{}, exitcode.UserError
	}

	store, err := env.Workspace.Open(ctx)
	if err != nil {
		return nil, task.Task{}, fail(errOut, err)
	}

	target, err := ref.Resolve(store.Tasks())
	if err != nil {
		store.Close()
		fmt.Fprintf(errOut, "error: %v\n", err)
		return nil, task.Task{}, exitcode.UserError
	}
	return store, target, exitcode.Success
}
