package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/basket/chatdo/internal/persistence"
)

func newTestRegistry(t *testing.T) (*Registry, *persistence.Store) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "tasks.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRegistry(store, nil), store
}

func TestInvoke_UnknownTool(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Invoke(context.Background(), "launch_rocket", "u1", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestAddTask(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res, err := reg.Invoke(context.Background(), "add_task", "u1", map[string]any{
		"title": "buy milk", "priority": "high",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.Message != "Task 'buy milk' added successfully" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Data["task_id"] == "" {
		t.Fatal("expected task_id in data")
	}
	task, ok := res.Data["task"].(*persistence.Task)
	if !ok {
		t.Fatalf("data task type = %T", res.Data["task"])
	}
	if task.Priority != persistence.TaskPriorityHigh {
		t.Fatalf("priority = %q", task.Priority)
	}
}

func TestAddTask_MissingTitle(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res, err := reg.Invoke(context.Background(), "add_task", "u1", map[string]any{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for missing title")
	}
	if res.Message != "title is required" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestListTasks(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	store.CreateTask(ctx, "u1", "a", "", "")
	b, _ := store.CreateTask(ctx, "u1", "b", "", "")
	store.CompleteTask(ctx, "u1", b.ID)

	res, err := reg.Invoke(ctx, "list_tasks", "u1", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success || res.Data["count"] != 2 {
		t.Fatalf("result = %+v, want count 2", res)
	}
	if res.Message != "Found 2 tasks" {
		t.Fatalf("message = %q", res.Message)
	}

	res, _ = reg.Invoke(ctx, "list_tasks", "u1", map[string]any{"status": "pending"})
	if res.Data["count"] != 1 {
		t.Fatalf("pending count = %v, want 1", res.Data["count"])
	}
}

func TestListTasks_StatusAll(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	store.CreateTask(ctx, "u1", "a", "", "")
	b, _ := store.CreateTask(ctx, "u1", "b", "", "")
	store.CompleteTask(ctx, "u1", b.ID)

	// "all" is a valid filter naming the unfiltered list.
	res, err := reg.Invoke(ctx, "list_tasks", "u1", map[string]any{"status": "all"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success for status all", res)
	}
	if res.Data["count"] != 2 {
		t.Fatalf("count = %v, want 2", res.Data["count"])
	}

	// An unknown status still fails cleanly inside the result.
	res, err = reg.Invoke(ctx, "list_tasks", "u1", map[string]any{"status": "bogus"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Success {
		t.Fatalf("result = %+v, want failure for unknown status", res)
	}
}

func TestListTasks_EmptyIsSuccess(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res, err := reg.Invoke(context.Background(), "list_tasks", "u1", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success || res.Data["count"] != 0 {
		t.Fatalf("result = %+v, want success with count 0", res)
	}
}

func TestCompleteTask(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	task, _ := store.CreateTask(ctx, "u1", "finish", "", "")

	res, err := reg.Invoke(ctx, "complete_task", "u1", map[string]any{"task_id": task.ID})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Task 'finish' marked as completed" {
		t.Fatalf("message = %q", res.Message)
	}

	// Completing again reports not found, absorbed into the result.
	res, err = reg.Invoke(ctx, "complete_task", "u1", map[string]any{"task_id": task.ID})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Success || res.Message != "Task not found or unauthorized" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCompleteTask_MissingID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res, _ := reg.Invoke(context.Background(), "complete_task", "u1", nil)
	if res.Success || res.Message != "task_id is required" {
		t.Fatalf("result = %+v", res)
	}
}

func TestUpdateTask(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	task, _ := store.CreateTask(ctx, "u1", "old", "", "")

	res, err := reg.Invoke(ctx, "update_task", "u1", map[string]any{
		"task_id": task.ID, "title": "new", "priority": "low",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success || res.Message != "Task 'new' updated successfully" {
		t.Fatalf("result = %+v", res)
	}

	updated, _ := store.GetTask(ctx, "u1", task.ID)
	if updated.Title != "new" || updated.Priority != persistence.TaskPriorityLow {
		t.Fatalf("task = %+v", updated)
	}
}

func TestUpdateTask_OtherUsersTask(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	task, _ := store.CreateTask(ctx, "owner", "theirs", "", "")

	res, _ := reg.Invoke(ctx, "update_task", "intruder", map[string]any{
		"task_id": task.ID, "title": "mine now",
	})
	if res.Success || res.Message != "Task not found or unauthorized" {
		t.Fatalf("result = %+v", res)
	}
}

func TestDeleteTask(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	task, _ := store.CreateTask(ctx, "u1", "trash", "", "")

	res, err := reg.Invoke(ctx, "delete_task", "u1", map[string]any{"task_id": task.ID})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success || res.Message != "Task deleted successfully" {
		t.Fatalf("result = %+v", res)
	}

	res, _ = reg.Invoke(ctx, "delete_task", "u1", map[string]any{"task_id": task.ID})
	if res.Success || res.Message != "Task not found or unauthorized" {
		t.Fatalf("result = %+v", res)
	}
}

func TestHasAndNames(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if !reg.Has("add_task") || reg.Has("nope") {
		t.Fatal("Has misbehaved")
	}
	if len(reg.Names()) != 5 {
		t.Fatalf("names = %v", reg.Names())
	}
}
