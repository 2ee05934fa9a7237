package persistence

import (
	"context"
	"testing"
)

func TestRunRetention_PurgesOldCompletedTasks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old, _ := store.CreateTask(ctx, "u1", "old done", "", "")
	store.CompleteTask(ctx, "u1", old.ID)
	recent, _ := store.CreateTask(ctx, "u1", "recent done", "", "")
	store.CompleteTask(ctx, "u1", recent.ID)
	pending, _ := store.CreateTask(ctx, "u1", "still pending", "", "")

	// Age the first completed task beyond the window.
	if _, err := store.DB().Exec(`
		UPDATE tasks SET completed_at = datetime('now', '-40 days') WHERE id = ?;
	`, old.ID); err != nil {
		t.Fatalf("age task: %v", err)
	}

	result, err := store.RunRetention(ctx, 30, 0)
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if result.CompletedTasksPurged != 1 {
		t.Fatalf("purged = %d, want 1", result.CompletedTasksPurged)
	}

	tasks, _ := store.ListTasks(ctx, "u1", "")
	if len(tasks) != 2 {
		t.Fatalf("remaining = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.ID == old.ID {
			t.Fatal("old completed task should be gone")
		}
	}
	if _, err := store.GetTask(ctx, "u1", pending.ID); err != nil {
		t.Fatalf("pending task should survive: %v", err)
	}
}

func TestRunRetention_PurgesOldMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "u1", "t")
	msg, _ := store.AppendMessage(ctx, "u1", conv.ID, "user", "ancient")
	store.AppendMessage(ctx, "u1", conv.ID, "assistant", "fresh")

	if _, err := store.DB().Exec(`
		UPDATE messages SET created_at = datetime('now', '-100 days') WHERE id = ?;
	`, msg.ID); err != nil {
		t.Fatalf("age message: %v", err)
	}

	result, err := store.RunRetention(ctx, 0, 90)
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if result.MessagesPurged != 1 {
		t.Fatalf("purged = %d, want 1", result.MessagesPurged)
	}

	msgs, _ := store.ListMessages(ctx, "u1", conv.ID, 0)
	if len(msgs) != 1 || msgs[0].Content != "fresh" {
		t.Fatalf("messages = %+v, want only the fresh one", msgs)
	}
}

func TestRunRetention_ZeroWindowsKeepEverything(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	task, _ := store.CreateTask(ctx, "u1", "keep", "", "")
	store.CompleteTask(ctx, "u1", task.ID)
	store.DB().Exec(`UPDATE tasks SET completed_at = datetime('now', '-1000 days');`)

	result, err := store.RunRetention(ctx, 0, 0)
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if result.CompletedTasksPurged != 0 || result.MessagesPurged != 0 {
		t.Fatalf("result = %+v, want nothing purged", result)
	}
}
