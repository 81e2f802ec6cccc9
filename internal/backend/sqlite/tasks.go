package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

const taskColumns = `id, user_id, title, description, completed, attachment, created_at`

// Tasks implements service.Gateway.
type Tasks struct {
	d *DB
}

var _ service.Gateway = (*Tasks)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (task.Task, error) {
	var (
		t          task.Task
		attachment sql.NullString
		createdAt  string
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &attachment, &createdAt); err != nil {
		return task.Task{}, err
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return task.Task{}, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	t.CreatedAt = ts
	if attachment.Valid && attachment.String != "" {
		var a task.Attachment
		if err := json.Unmarshal([]byte(attachment.String), &a); err != nil {
			return task.Task{}, fmt.Errorf("bad attachment for %s: %w", t.ID, err)
		}
		t.Attachment = &a
	}
	return t, nil
}

func encodeAttachment(a *task.Attachment) (any, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// List implements service.Gateway.
func (s *Tasks) List(ctx context.Context, ownerID string) ([]task.Task, error) {
	ctx, cancel := s.d.bound(ctx)
	defer cancel()

	rows, err := s.d.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM todos WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, task.Transport("list tasks", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, task.Transport("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, task.Transport("list tasks", err)
	}
	return tasks, nil
}

// Get implements service.Gateway.
func (s *Tasks) Get(ctx context.Context, id, ownerID string) (task.Task, error) {
	ctx, cancel := s.d.bound(ctx)
	defer cancel()

	row := s.d.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM todos WHERE id = ? AND user_id = ?`, id, ownerID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.NotFound(id)
	}
	if err != nil {
		return task.Task{}, task.Transport("get task", err)
	}
	return t, nil
}

// Create implements service.Gateway.
func (s *Tasks) Create(ctx context.Context, ownerID string, in task.NewTask) (task.Task, error) {
	if ownerID == "" {
		return task.Task{}, task.Validationf("owner id is required")
	}
	if err := task.ValidateTitle(in.Title); err != nil {
		return task.Task{}, err
	}
	attachment, err := encodeAttachment(in.Attachment)
	if err != nil {
		return task.Task{}, task.Validationf("attachment: %v", err)
	}

	ctx, cancel := s.d.bound(ctx)
	defer cancel()
	s.d.writeMu.Lock()
	defer s.d.writeMu.Unlock()

	createdAt := s.d.timestamp()
	row := s.d.db.QueryRowContext(ctx, `
		INSERT INTO todos (id, user_id, title, description, completed, attachment, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		RETURNING `+taskColumns,
		s.d.newID(), ownerID, in.Title, in.Description, attachment, createdAt)
	t, err := scanTask(row)
	if err != nil {
		return task.Task{}, task.Transport("create task", err)
	}

	s.d.feed.publish(service.ChangeInsert, t)
	return t, nil
}

// Update implements service.Gateway.
func (s *Tasks) Update(ctx context.Context, id, ownerID string, fields task.Fields) error {
	if fields.IsEmpty() {
		return task.Validationf("no fields to update")
	}

	var (
		sets []string
		args []any
	)
	if fields.Title != nil {
		if err := task.ValidateTitle(*fields.Title); err != nil {
			return err
		}
		sets = append(sets, "title = ?")
		args = append(args, *fields.Title)
	}
	if fields.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *fields.Description)
	}
	if fields.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *fields.Completed)
	}
	args = append(args, id, ownerID)

	query := fmt.Sprintf(`UPDATE todos SET %s WHERE id = ? AND user_id = ? RETURNING %s`,
		strings.Join(sets, ", "), taskColumns)

	ctx, cancel := s.d.bound(ctx)
	defer cancel()
	s.d.writeMu.Lock()
	defer s.d.writeMu.Unlock()

	t, err := scanTask(s.d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return task.NotFound(id)
	}
	if err != nil {
		return task.Transport("update task", err)
	}

	s.d.feed.publish(service.ChangeUpdate, t)
	return nil
}

// Delete implements service.Gateway.
func (s *Tasks) Delete(ctx context.Context, id, ownerID string) error {
	ctx, cancel := s.d.bound(ctx)
	defer cancel()
	s.d.writeMu.Lock()
	defer s.d.writeMu.Unlock()

	result, err := s.d.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return task.Transport("delete task", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return task.Transport("delete task", err)
	}
	if n == 0 {
		return task.NotFound(id)
	}

	s.d.feed.publish(service.ChangeDelete, task.Task{ID: id, OwnerID: ownerID})
	return nil
}
