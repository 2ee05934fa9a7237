package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/basket/chatdo/internal/bus"
	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

type Task struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TaskUpdate carries partial task changes. Nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *TaskPriority
}

func validStatus(s TaskStatus) bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

func validPriority(p TaskPriority) bool {
	return p == TaskPriorityLow || p == TaskPriorityMedium || p == TaskPriorityHigh
}

const taskColumns = `id, user_id, title, description, status, priority, created_at, updated_at, completed_at`

func scanTask(scanFn func(dest ...any) error, task *Task) error {
	var completedAt sql.NullTime
	if err := scanFn(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	); err != nil {
		return err
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	} else {
		task.CompletedAt = nil
	}
	return nil
}

// CreateTask inserts a new pending task for the user. An empty priority
// defaults to medium.
func (s *Store) CreateTask(ctx context.Context, userID, title, description string, priority TaskPriority) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if priority == "" {
		priority = TaskPriorityMedium
	}
	if !validPriority(priority) {
		return nil, fmt.Errorf("invalid priority %q", priority)
	}

	taskID := uuid.NewString()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, user_id, title, description, status, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'pending', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
		`, taskID, userID, title, description, priority)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.publish(bus.TopicTaskCreated, bus.TaskEvent{
		TaskID: task.ID, UserID: userID, Title: task.Title, Status: string(task.Status),
	})
	return task, nil
}

// GetTask returns a task by id, scoped to the owning user.
func (s *Store) GetTask(ctx context.Context, userID, taskID string) (*Task, error) {
	var task Task
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ? AND user_id = ?;
	`, taskID, userID)
	if err := scanTask(row.Scan, &task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	return &task, nil
}

// ListTasks returns the user's tasks in creation order. An empty status
// returns all tasks.
func (s *Store) ListTasks(ctx context.Context, userID string, status TaskStatus) ([]Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE user_id = ?
			ORDER BY created_at ASC, rowid ASC;
		`, userID)
	} else {
		if !validStatus(status) {
			return nil, fmt.Errorf("invalid status %q", status)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE user_id = ? AND status = ?
			ORDER BY created_at ASC, rowid ASC;
		`, userID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var task Task
		if err := scanTask(rows.Scan, &task); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows: %w", err)
	}
	return out, nil
}

// UpdateTask applies a partial update to the user's task. An update with
// no fields set still bumps updated_at. Returns ErrNotFound when the task
// does not exist or belongs to another user.
func (s *Store) UpdateTask(ctx context.Context, userID, taskID string, upd TaskUpdate) (*Task, error) {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}
	if upd.Priority != nil && !validPriority(*upd.Priority) {
		return nil, fmt.Errorf("invalid priority %q", *upd.Priority)
	}

	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*upd.Title))
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	args = append(args, taskID, userID)

	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET `+strings.Join(sets, ", ")+`
			WHERE id = ? AND user_id = ?;
		`, args...)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.publish(bus.TopicTaskUpdated, bus.TaskEvent{
		TaskID: task.ID, UserID: userID, Title: task.Title, Status: string(task.Status),
	})
	return task, nil
}

// CompleteTask marks a pending task as completed, recording completed_at.
// Returns ErrNotFound when the task does not exist, belongs to another
// user, or is already completed.
func (s *Store) CompleteTask(ctx context.Context, userID, taskID string) (*Task, error) {
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'completed', completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND user_id = ? AND status = 'pending';
		`, taskID, userID)
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("complete rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.publish(bus.TopicTaskCompleted, bus.TaskEvent{
		TaskID: task.ID, UserID: userID, Title: task.Title, Status: string(task.Status),
	})
	return task, nil
}

// ReopenTask moves a completed task back to pending, clearing completed_at.
func (s *Store) ReopenTask(ctx context.Context, userID, taskID string) (*Task, error) {
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'pending', completed_at = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND user_id = ? AND status = 'completed';
		`, taskID, userID)
		if err != nil {
			return fmt.Errorf("reopen task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reopen rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.publish(bus.TopicTaskUpdated, bus.TaskEvent{
		TaskID: task.ID, UserID: userID, Title: task.Title, Status: string(task.Status),
	})
	return task, nil
}

// DeleteTask removes the user's task. Returns false when nothing was deleted.
func (s *Store) DeleteTask(ctx context.Context, userID, taskID string) (bool, error) {
	var deleted bool
	var title string
	err := retryOnBusy(ctx, 5, func() error {
		// Fetch the title first so the bus event can carry it.
		row := s.db.QueryRowContext(ctx, `SELECT title FROM tasks WHERE id = ? AND user_id = ?;`, taskID, userID)
		if err := row.Scan(&title); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				deleted = false
				return nil
			}
			return fmt.Errorf("select task title: %w", err)
		}
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM tasks WHERE id = ? AND user_id = ?;
		`, taskID, userID)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.publish(bus.TopicTaskDeleted, bus.TaskEvent{TaskID: taskID, UserID: userID, Title: title})
	}
	return deleted, nil
}

// TaskCounts returns the user's pending and completed task counts.
func (s *Store) TaskCounts(ctx context.Context, userID string) (pending, completed int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE user_id = ?;
	`, userID)
	if err := row.Scan(&pending, &completed); err != nil {
		return 0, 0, fmt.Errorf("task counts: %w", err)
	}
	return pending, completed, nil
}
