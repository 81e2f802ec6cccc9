package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

const taskColumns = `id::text, user_id, title, description, completed, attachment, created_at`

// Tasks implements service.Gateway.
type Tasks struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ service.Gateway = (*Tasks)(nil)

func scanTask(row pgx.Row) (task.Task, error) {
	var (
		t          task.Task
		attachment []byte
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &attachment, &t.CreatedAt); err != nil {
		return task.Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if len(attachment) > 0 && string(attachment) != "null" {
		var a task.Attachment
		if err := json.Unmarshal(attachment, &a); err != nil {
			return task.Task{}, fmt.Errorf("bad attachment for %s: %w", t.ID, err)
		}
		t.Attachment = &a
	}
	return t, nil
}

// validID reports whether id can match a row; other ids are simply not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// List implements service.Gateway.
func (s *Tasks) List(ctx context.Context, ownerID string) ([]task.Task, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM todos WHERE user_id = $1
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
	if !validID(id) {
		return task.Task{}, task.NotFound(id)
	}
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	t, err := scanTask(s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM todos WHERE id = $1 AND user_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
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

	var attachment any
	if in.Attachment != nil {
		data, err := json.Marshal(in.Attachment)
		if err != nil {
			return task.Task{}, task.Validationf("attachment: %v", err)
		}
		attachment = string(data)
	}

	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	t, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO todos (user_id, title, description, attachment)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING `+taskColumns,
		ownerID, in.Title, in.Description, attachment))
	if err != nil {
		return task.Task{}, task.Transport("create task", err)
	}
	return t, nil
}

// Update implements service.Gateway.
func (s *Tasks) Update(ctx context.Context, id, ownerID string, fields task.Fields) error {
	if fields.IsEmpty() {
		return task.Validationf("no fields to update")
	}
	if !validID(id) {
		return task.NotFound(id)
	}

	// Build SET clause dynamically
	var sets []string
	args := []any{id, ownerID}
	if fields.Title != nil {
		if err := task.ValidateTitle(*fields.Title); err != nil {
			return err
		}
		args = append(args, *fields.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if fields.Description != nil {
		args = append(args, *fields.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if fields.Completed != nil {
		args = append(args, *fields.Completed)
		sets = append(sets, fmt.Sprintf("completed = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE todos SET %s WHERE id = $1 AND user_id = $2`, strings.Join(sets, ", "))
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return task.Transport("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return task.NotFound(id)
	}
	return nil
}

// Delete implements service.Gateway.
func (s *Tasks) Delete(ctx context.Context, id, ownerID string) error {
	if !validID(id) {
		return task.NotFound(id)
	}
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return task.Transport("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return task.NotFound(id)
	}
	return nil
}
