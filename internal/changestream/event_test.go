package changestream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

func sample(owner string) task.Task {
	return task.Task{
		ID:        "t1",
		Title:     "Water plants",
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		OwnerID:   owner,
	}
}

func TestDecode(t *testing.T) {
	insert, err := service.EncodeChange(service.ChangeInsert, sample("u1"))
	require.NoError(t, err)
	update, err := service.EncodeChange(service.ChangeUpdate, sample("u1"))
	require.NoError(t, err)
	del, err := service.EncodeChange(service.ChangeDelete, sample("u1"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		want    Event
		wantErr error
	}{
		{name: "insert", payload: insert, want: InsertedEvent(sample("u1"))},
		{name: "update", payload: update, want: UpdatedEvent(sample("u1"))},
		{name: "delete", payload: del, want: DeletedEvent("t1")},
		{
			name:    "delete with key only",
			payload: []byte(`{"type":"DELETE","old_record":{"id":"t1"}}`),
			want:    DeletedEvent("t1"),
		},
		{
			name:    "truncated update",
			payload: []byte(`{"type":"UPDATE","record":{"id":"t1","user_id":"u1"},"truncated":true}`),
			want:    Event{Kind: Updated, ID: "t1"},
			wantErr: ErrTruncated,
		},
		{
			name:    "foreign insert",
			payload: []byte(`{"type":"INSERT","record":{"id":"t1","user_id":"u2","title":"x"}}`),
			wantErr: ErrForeignOwner,
		},
		{
			name:    "insert without owner",
			payload: []byte(`{"type":"INSERT","record":{"id":"t1","title":"x"}}`),
			wantErr: ErrForeignOwner,
		},
		{
			name:    "foreign delete",
			payload: []byte(`{"type":"DELETE","old_record":{"id":"t1","user_id":"u2"}}`),
			wantErr: ErrForeignOwner,
		},
		{
			name: "postgres row with attachment",
			payload: []byte(`{"type" : "INSERT", "record" : {"id":"0190f3a2-7c1e-7b3a-9d2e-5b8f1c2a4e6d",` +
				`"user_id":"u1","title":"Water plants","description":"","completed":false,` +
				`"attachment":{"public_url": "https://cdn.example.com/u1/a.png", "storage_path": "u1/a.png", "original_file_name": "a.png"},` +
				`"created_at":"2024-03-01T09:00:00.123456+00:00"}, ` +
				`"old_record" : {"id" : "0190f3a2-7c1e-7b3a-9d2e-5b8f1c2a4e6d", "user_id" : "u1"}}`),
			want: InsertedEvent(task.Task{
				ID:        "0190f3a2-7c1e-7b3a-9d2e-5b8f1c2a4e6d",
				Title:     "Water plants",
				CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 123456000, time.UTC),
				OwnerID:   "u1",
				Attachment: &task.Attachment{
					StoragePath:      "u1/a.png",
					PublicURL:        "https://cdn.example.com/u1/a.png",
					OriginalFileName: "a.png",
				},
			}),
		},
		{
			name: "postgres row with offset and null attachment",
			payload: []byte(`{"type" : "UPDATE", "record" : {"id":"t1","user_id":"u1","title":"Water plants",` +
				`"description":"","completed":true,"attachment":null,"created_at":"2024-03-01T11:00:00+02:00"}, ` +
				`"old_record" : {"id" : "t1", "user_id" : "u1"}}`),
			want: UpdatedEvent(task.Task{
				ID:        "t1",
				Title:     "Water plants",
				Completed: true,
				CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
				OwnerID:   "u1",
			}),
		},
		{name: "not json", payload: []byte(`{`), wantErr: ErrMalformed},
		{name: "unknown type", payload: []byte(`{"type":"TRUNCATE"}`), wantErr: ErrMalformed},
		{name: "insert without record", payload: []byte(`{"type":"INSERT"}`), wantErr: ErrMalformed},
		{name: "delete without id", payload: []byte(`{"type":"DELETE","old_record":{}}`), wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.payload, "u1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.True(t, tt.want.Task.CreatedAt.Equal(got.Task.CreatedAt))
			tt.want.Task.CreatedAt, got.Task.CreatedAt = time.Time{}, time.Time{}
			assert.Equal(t, tt.want.Task, got.Task)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "kind(0)", Kind(0).String())
}
