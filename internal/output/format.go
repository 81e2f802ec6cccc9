// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tasktrack/internal/changestream"
	"tasktrack/internal/task"
)

// TimeLayout is the display format for task timestamps.
const TimeLayout = "2006-01-02 15:04"

// FormatTask formats a task line for the list.
// Format: "{N:>4}  [x] {TITLE}{ +file}\n"
func FormatTask(w io.Writer, num int, t task.Task) {
	fmt.Fprintf(w, "%4d  %s %s%s\n", num, checkbox(t.Completed), normalizeTitle(t.Title), fileMarker(t))
}

// FormatTaskList formats every task, numbered from 1.
func FormatTaskList(w io.Writer, tasks []task.Task) {
	for i, t := range tasks {
		FormatTask(w, i+1, t)
	}
}

// FormatDetail formats all fields of a single task.
func FormatDetail(w io.Writer, t task.Task) {
	fmt.Fprintf(w, "id:          %s\n", t.ID)
	fmt.Fprintf(w, "title:       %s\n", normalizeTitle(t.Title))
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(w, "description: %s\n", indentContinuation(d))
	}
	fmt.Fprintf(w, "status:      %s\n", status(t.Completed))
	fmt.Fprintf(w, "created:     %s\n", t.CreatedAt.UTC().Format(TimeLayout))
	if t.Attachment != nil {
		fmt.Fprintf(w, "attachment:  %s\n", t.Attachment.OriginalFileName)
		fmt.Fprintf(w, "url:         %s\n", t.Attachment.PublicURL)
	}
}

// FormatEvent formats a change stream event for the watch command.
func FormatEvent(w io.Writer, now time.Time, ev changestream.Event) {
	stamp := now.UTC().Format("15:04:05")
	switch ev.Kind {
	case changestream.Inserted:
		fmt.Fprintf(w, "%s  + %s  %s\n", stamp, ev.ID, normalizeTitle(ev.Task.Title))
	case changestream.Updated:
		fmt.Fprintf(w, "%s  ~ %s  %s %s\n", stamp, ev.ID, checkbox(ev.Task.Completed), normalizeTitle(ev.Task.Title))
	case changestream.Deleted:
		fmt.Fprintf(w, "%s  - %s\n", stamp, ev.ID)
	}
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func status(done bool) string {
	if done {
		return "done"
	}
	return "open"
}

func fileMarker(t task.Task) string {
	if t.Attachment == nil {
		return ""
	}
	return "  +" + t.Attachment.OriginalFileName
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

// indentContinuation aligns the lines of a multi-line value under its first line.
func indentContinuation(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\n             ")
}
