package service

import (
	"encoding/json"

	"tasktrack/internal/task"
)

// Change message types, matching the trigger operation names.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeMessage is the JSON payload carried by a Subscription.
//
// Record is the new row for INSERT and UPDATE. OldRecord carries at least
// id and user_id for UPDATE and DELETE. When Truncated is set the transport
// could not fit the row and only id and user_id are present.
type ChangeMessage struct {
	Type      string     `json:"type"`
	Record    *task.Task `json:"record,omitempty"`
	OldRecord *task.Task `json:"old_record,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

// EncodeChange builds the payload for a change to t.
func EncodeChange(changeType string, t task.Task) ([]byte, error) {
	msg := ChangeMessage{Type: changeType}
	switch changeType {
	case ChangeInsert:
		msg.Record = &t
	case ChangeUpdate:
		msg.Record = &t
		msg.OldRecord = &task.Task{ID: t.ID, OwnerID: t.OwnerID}
	default:
		msg.OldRecord = &task.Task{ID: t.ID, OwnerID: t.OwnerID}
	}
	return json.Marshal(msg)
}
