package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/chatdo/internal/persistence"
)

// ErrToolNotFound is returned when Invoke is called with an unknown tool name.
var ErrToolNotFound = errors.New("tool not found")

// Result is the outcome of a tool invocation. A failed invocation is a
// Result with Success=false, not an error: store and validation problems
// are absorbed here so callers can relay the message verbatim.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func failure(message string) Result {
	return Result{Success: false, Message: message}
}

// Registry holds the task tools and dispatches invocations by name.
type Registry struct {
	store  *persistence.Store
	logger *slog.Logger
}

func NewRegistry(store *persistence.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	return []string{"add_task", "list_tasks", "complete_task", "update_task", "delete_task"}
}

// Has reports whether the named tool exists.
func (r *Registry) Has(name string) bool {
	switch name {
	case "add_task", "list_tasks", "complete_task", "update_task", "delete_task":
		return true
	}
	return false
}

// Invoke runs the named tool for the given user. Unknown tool names
// return ErrToolNotFound; every other failure is reported inside Result.
func (r *Registry) Invoke(ctx context.Context, name, userID string, args map[string]any) (Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result Result
	switch name {
	case "add_task":
		result = r.addTask(ctx, userID, args)
	case "list_tasks":
		result = r.listTasks(ctx, userID, args)
	case "complete_task":
		result = r.completeTask(ctx, userID, args)
	case "update_task":
		result = r.updateTask(ctx, userID, args)
	case "delete_task":
		result = r.deleteTask(ctx, userID, args)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	r.logger.Debug("tool invoked", "tool", name, "user_id", userID, "success", result.Success)
	return result, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (r *Registry) addTask(ctx context.Context, userID string, args map[string]any) Result {
	title := strings.TrimSpace(stringArg(args, "title"))
	if title == "" {
		return failure("title is required")
	}
	description := stringArg(args, "description")
	priority := persistence.TaskPriority(stringArg(args, "priority"))

	task, err := r.store.CreateTask(ctx, userID, title, description, priority)
	if err != nil {
		return failure(fmt.Sprintf("Failed to add task: %v", err))
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Task '%s' added successfully", task.Title),
		Data:    map[string]any{"task_id": task.ID, "task": task},
	}
}

func (r *Registry) listTasks(ctx context.Context, userID string, args map[string]any) Result {
	statusArg := strings.TrimSpace(stringArg(args, "status"))
	// "all" is the query-only pseudo-status: an unfiltered list.
	if statusArg == "all" {
		statusArg = ""
	}
	tasks, err := r.store.ListTasks(ctx, userID, persistence.TaskStatus(statusArg))
	if err != nil {
		return failure(fmt.Sprintf("Failed to list tasks: %v", err))
	}
	if tasks == nil {
		tasks = []persistence.Task{}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Found %d tasks", len(tasks)),
		Data:    map[string]any{"count": len(tasks), "tasks": tasks},
	}
}

func (r *Registry) completeTask(ctx context.Context, userID string, args map[string]any) Result {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return failure("task_id is required")
	}
	task, err := r.store.CompleteTask(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return failure("Task not found or unauthorized")
		}
		return failure(fmt.Sprintf("Failed to complete task: %v", err))
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Task '%s' marked as completed", task.Title),
		Data:    map[string]any{"task": task},
	}
}

func (r *Registry) updateTask(ctx context.Context, userID string, args map[string]any) Result {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return failure("task_id is required")
	}

	var upd persistence.TaskUpdate
	if v, ok := args["title"].(string); ok {
		upd.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		upd.Description = &v
	}
	if v, ok := args["priority"].(string); ok {
		p := persistence.TaskPriority(v)
		upd.Priority = &p
	}

	task, err := r.store.UpdateTask(ctx, userID, taskID, upd)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return failure("Task not found or unauthorized")
		}
		return failure(fmt.Sprintf("Failed to update task: %v", err))
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Task '%s' updated successfully", task.Title),
		Data:    map[string]any{"task": task},
	}
}

func (r *Registry) deleteTask(ctx context.Context, userID string, args map[string]any) Result {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return failure("task_id is required")
	}
	deleted, err := r.store.DeleteTask(ctx, userID, taskID)
	if err != nil {
		return failure(fmt.Sprintf("Failed to delete task: %v", err))
	}
	if !deleted {
		return failure("Task not found or unauthorized")
	}
	return Result{Success: true, Message: "Task deleted successfully"}
}
