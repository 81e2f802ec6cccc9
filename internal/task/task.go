// Package task defines the task record shared by every layer of tasktrack.
package task

import (
	"sort"
	"strings"
	"time"
)

// Task is a single task item owned by one user.
type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Completed   bool        `json:"completed"`
	CreatedAt   time.Time   `json:"created_at"`
	OwnerID     string      `json:"user_id"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// Attachment describes a file stored in the blob store for a task.
type Attachment struct {
	StoragePath      string `json:"storage_path"`
	PublicURL        string `json:"public_url"`
	OriginalFileName string `json:"original_file_name"`
}

// NewTask holds the caller-supplied fields of a task about to be created.
// The remote store assigns ID and CreatedAt.
type NewTask struct {
	Title       string
	Description string
	Attachment  *Attachment
}

// File is an upload supplied by the user when creating a task.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fields is a partial update. Nil members are left untouched.
type Fields struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f Fields) IsEmpty() bool {
	return f.Title == nil && f.Description == nil && f.Completed == nil
}

// Apply returns t with the set fields overwritten.
func (f Fields) Apply(t Task) Task {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Completed != nil {
		t.Completed = *f.Completed
	}
	return t
}

// Capture returns a Fields holding t's current values for every field set in f.
// Used to undo an Apply.
func (f Fields) Capture(t Task) Fields {
	var prev Fields
	if f.Title != nil {
		v := t.Title
		prev.Title = &v
	}
	if f.Description != nil {
		v := t.Description
		prev.Description = &v
	}
	if f.Completed != nil {
		v := t.Completed
		prev.Completed = &v
	}
	return prev
}

// Holds reports whether every field set in f currently has f's value in t.
func (f Fields) Holds(t Task) bool {
	if f.Title != nil && t.Title != *f.Title {
		return false
	}
	if f.Description != nil && t.Description != *f.Description {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	return true
}

// ValidateTitle rejects empty or whitespace-only titles.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return Validationf("title is required")
	}
	return nil
}

// Before reports whether a sorts before b: newest first, ties broken by id descending.
func Before(a, b Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortNewestFirst orders tasks by CreatedAt descending in place.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Before(tasks[i], tasks[j])
	})
}

// IsSorted reports whether tasks is in list order.
func IsSorted(tasks []Task) bool {
	for i := 1; i < len(tasks); i++ {
		if Before(tasks[i], tasks[i-1]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.Attachment != nil {
		a := *t.Attachment
		t.Attachment = &a
	}
	return t
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
