// Package changestream turns a remote store's push subscription into a typed,
// owner-filtered event sequence.
package changestream

import (
	"encoding/json"
	"errors"
	"fmt"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// Kind identifies the change an Event carries.
type Kind int

const (
	Inserted Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one decoded row change.
// Task is set for Inserted and Updated; ID is always set.
type Event struct {
	Kind Kind
	ID   string
	Task task.Task
}

// InsertedEvent returns an Inserted event for t.
func InsertedEvent(t task.Task) Event { return Event{Kind: Inserted, ID: t.ID, Task: t} }

// UpdatedEvent returns an Updated event for t.
func UpdatedEvent(t task.Task) Event { return Event{Kind: Updated, ID: t.ID, Task: t} }

// DeletedEvent returns a Deleted event for id.
func DeletedEvent(id string) Event { return Event{Kind: Deleted, ID: id} }

var (
	// ErrForeignOwner marks a notification for a row owned by someone else.
	ErrForeignOwner = errors.New("notification for another owner")

	// ErrMalformed marks a payload that cannot be decoded.
	ErrMalformed = errors.New("malformed notification")

	// ErrTruncated marks a notification whose row must be fetched.
	// The returned Event carries Kind and ID only.
	ErrTruncated = errors.New("truncated notification")
)

// Decode parses a change payload and checks it against ownerID.
func Decode(payload []byte, ownerID string) (Event, error) {
	var msg service.ChangeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch msg.Type {
	case service.ChangeInsert, service.ChangeUpdate:
		kind := Inserted
		if msg.Type == service.ChangeUpdate {
			kind = Updated
		}
		if msg.Record == nil || msg.Record.ID == "" {
			return Event{}, fmt.Errorf("%w: %s without record", ErrMalformed, msg.Type)
		}
		// Rows without an owner cannot be attributed and are never forwarded.
		if msg.Record.OwnerID != ownerID {
			return Event{}, fmt.Errorf("%w: %s", ErrForeignOwner, msg.Record.ID)
		}
		if msg.Truncated {
			return Event{Kind: kind, ID: msg.Record.ID}, ErrTruncated
		}
		return Event{Kind: kind, ID: msg.Record.ID, Task: *msg.Record}, nil

	case service.ChangeDelete:
		old := msg.OldRecord
		if old == nil {
			old = msg.Record
		}
		if old == nil || old.ID == "" {
			return Event{}, fmt.Errorf("%w: DELETE without id", ErrMalformed)
		}
		// Delete payloads may carry only the primary key. A missing owner is
		// accepted since deleting an id the store does not hold is a no-op.
		if old.OwnerID != "" && old.OwnerID != ownerID {
			return Event{}, fmt.Errorf("%w: %s", ErrForeignOwner, old.ID)
		}
		return DeletedEvent(old.ID), nil

	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
}
