package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/chatdo/internal/bus"
	"github.com/basket/chatdo/internal/identity"
	"github.com/basket/chatdo/internal/persistence"
	"github.com/basket/chatdo/internal/tools"
)

// ToolCall records one operation performed on behalf of a chat message.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    tools.Result   `json:"result"`
}

// Outcome is the complete result of routing one chat message. Success is
// false only when an underlying store operation failed; classification
// misses and clarification replies are normal successful outcomes.
type Outcome struct {
	Success   bool       `json:"success"`
	Intent    Intent     `json:"intent"`
	Reply     string     `json:"reply"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

const defaultListLimit = 5

// Router turns free-text chat messages into task operations.
type Router struct {
	store     *persistence.Store
	registry  *tools.Registry
	bus       *bus.Bus // may be nil
	logger    *slog.Logger
	listLimit int
}

func NewRouter(store *persistence.Store, registry *tools.Registry, eventBus *bus.Bus, logger *slog.Logger, listLimit int) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &Router{
		store:     store,
		registry:  registry,
		bus:       eventBus,
		logger:    logger,
		listLimit: listLimit,
	}
}

// Route classifies the message, performs the matching task operation, and
// formats a reply. It never returns an error: store failures are absorbed
// into a failure Outcome so the caller always has a reply to send.
func (r *Router) Route(ctx context.Context, userID, message string) Outcome {
	userID = identity.NormalizeString(userID)

	match := Classify(message)
	var outcome Outcome
	switch match.Intent {
	case IntentAdd:
		outcome = r.routeAdd(ctx, userID, match.RawTitle)
	case IntentList:
		outcome = r.routeList(ctx, userID, message)
	case IntentComplete:
		outcome = r.routeComplete(ctx, userID, message)
	case IntentUpdate:
		outcome = r.routeUpdate(ctx, userID, message)
	case IntentDelete:
		outcome = r.routeDelete(ctx, userID, message)
	default:
		outcome = Outcome{
			Success: true,
			Reply: fmt.Sprintf("I received your message: '%s'. I'm an AI assistant for managing your tasks. "+
				"You can ask me to add, view, update, complete, or delete tasks.", message),
		}
	}
	outcome.Intent = match.Intent
	if outcome.ToolCalls == nil {
		outcome.ToolCalls = []ToolCall{}
	}

	r.logger.Info("chat routed",
		"user_id", userID,
		"intent", string(match.Intent),
		"success", outcome.Success,
		"tool_calls", len(outcome.ToolCalls))
	if r.bus != nil {
		r.bus.Publish(bus.TopicChatRouted, bus.ChatRoutedEvent{
			UserID:  userID,
			Intent:  string(match.Intent),
			Success: outcome.Success,
		})
	}
	return outcome
}

func (r *Router) routeAdd(ctx context.Context, userID, rawTitle string) Outcome {
	title := ExtractTitle(rawTitle)
	if title == "" {
		return Outcome{
			Success: true,
			Reply:   "I'd be happy to help you add a task. Could you please tell me what task you'd like to add?",
		}
	}

	args := map[string]any{"title": title}
	result, err := r.registry.Invoke(ctx, "add_task", userID, args)
	if err != nil || !result.Success {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't add that task: %s", resultMessage(result, err)),
		}
	}
	return Outcome{
		Success:   true,
		Reply:     result.Message,
		ToolCalls: []ToolCall{{Name: "add_task", Arguments: args, Result: result}},
	}
}

func (r *Router) routeList(ctx context.Context, userID, message string) Outcome {
	status := StatusFilter(message)
	statusArg := string(status)
	if statusArg == "" {
		statusArg = "all"
	}
	args := map[string]any{"status": statusArg}
	result, err := r.registry.Invoke(ctx, "list_tasks", userID, args)
	if err != nil || !result.Success {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't retrieve your tasks: %s", resultMessage(result, err)),
		}
	}

	tasks, _ := result.Data["tasks"].([]persistence.Task)
	statusText := ""
	if status != "" {
		statusText = string(status) + " "
	}

	var reply string
	if len(tasks) == 0 {
		reply = fmt.Sprintf("You don't have any %stasks right now.", statusText)
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "Here are your %stasks:\n", statusText)
		shown := tasks
		if len(shown) > r.listLimit {
			shown = shown[:r.listLimit]
		}
		for i, task := range shown {
			marker := "○"
			if task.Status == persistence.TaskStatusCompleted {
				marker = "✓"
			}
			priorityStr := ""
			if task.Priority != persistence.TaskPriorityMedium {
				priorityStr = fmt.Sprintf(" (%s priority)", task.Priority)
			}
			fmt.Fprintf(&b, "\n%d. %s %s%s", i+1, marker, task.Title, priorityStr)
		}
		if len(tasks) > r.listLimit {
			fmt.Fprintf(&b, "\n\n... and %d more tasks.", len(tasks)-r.listLimit)
		}
		reply = b.String()
	}

	return Outcome{
		Success:   true,
		Reply:     reply,
		ToolCalls: []ToolCall{{Name: "list_tasks", Arguments: args, Result: result}},
	}
}

func (r *Router) routeComplete(ctx context.Context, userID, message string) Outcome {
	pending, err := r.store.ListTasks(ctx, userID, persistence.TaskStatusPending)
	if err != nil {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't retrieve your tasks: %v", err),
		}
	}
	if len(pending) == 0 {
		return Outcome{Success: true, Reply: "You don't have any pending tasks to complete."}
	}

	target := Resolve(pending, message)
	if target == nil {
		// Positional fallback: first pending task.
		target = &pending[0]
	}

	args := map[string]any{"task_id": target.ID}
	result, err := r.registry.Invoke(ctx, "complete_task", userID, args)
	if err != nil || !result.Success {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't complete that task: %s", resultMessage(result, err)),
		}
	}
	return Outcome{
		Success:   true,
		Reply:     result.Message,
		ToolCalls: []ToolCall{{Name: "complete_task", Arguments: args, Result: result}},
	}
}

func (r *Router) routeUpdate(ctx context.Context, userID, message string) Outcome {
	all, err := r.store.ListTasks(ctx, userID, "")
	if err != nil {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't retrieve your tasks: %v", err),
		}
	}
	if len(all) == 0 {
		return Outcome{Success: true, Reply: "You don't have any tasks to update."}
	}

	target := Resolve(all, message)
	if target == nil {
		// Positional fallback: first task in the list.
		target = &all[0]
	}

	// Keep the current title when the message carries no replacement;
	// the update still runs and is reported as a success.
	newTitle := target.Title
	if extracted, ok := NewTitleFromUpdate(message); ok {
		newTitle = extracted
	}

	args := map[string]any{"task_id": target.ID, "title": newTitle}
	result, err := r.registry.Invoke(ctx, "update_task", userID, args)
	if err != nil || !result.Success {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't update that task: %s", resultMessage(result, err)),
		}
	}
	return Outcome{
		Success:   true,
		Reply:     result.Message,
		ToolCalls: []ToolCall{{Name: "update_task", Arguments: args, Result: result}},
	}
}

func (r *Router) routeDelete(ctx context.Context, userID, message string) Outcome {
	all, err := r.store.ListTasks(ctx, userID, "")
	if err != nil {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't retrieve your tasks: %v", err),
		}
	}
	if len(all) == 0 {
		return Outcome{Success: true, Reply: "You don't have any tasks to delete."}
	}

	target := Resolve(all, message)
	if target == nil {
		// Positional fallback: first task in the list.
		target = &all[0]
	}

	args := map[string]any{"task_id": target.ID}
	result, err := r.registry.Invoke(ctx, "delete_task", userID, args)
	if err != nil || !result.Success {
		return Outcome{
			Success: false,
			Reply:   fmt.Sprintf("Sorry, I couldn't delete that task: %s", resultMessage(result, err)),
		}
	}
	return Outcome{
		Success:   true,
		Reply:     result.Message,
		ToolCalls: []ToolCall{{Name: "delete_task", Arguments: args, Result: result}},
	}
}

func resultMessage(result tools.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	return result.Message
}
