package intent

import (
	"testing"

	"github.com/basket/chatdo/internal/persistence"
)

func TestExtractTitle(t *testing.T) {
	cases := map[string]string{
		"  buy milk  ":                       "buy milk",
		"buy milk. it should be the 2% kind": "buy milk",
		"":                                   "",
		"   ":                                "",
		".trailing only":                     "",
	}
	for in, want := range cases {
		if got := ExtractTitle(in); got != want {
			t.Fatalf("ExtractTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusFilter(t *testing.T) {
	cases := map[string]persistence.TaskStatus{
		"show my pending tasks":      persistence.TaskStatusPending,
		"show incomplete items":      persistence.TaskStatusPending,
		"view completed tasks":       persistence.TaskStatusCompleted,
		"what have I done":           persistence.TaskStatusCompleted,
		"show my tasks":              "",
		"list everything":            "",
		"show pending and completed": persistence.TaskStatusPending, // pending checked first
	}
	for in, want := range cases {
		if got := StatusFilter(in); got != want {
			t.Fatalf("StatusFilter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewTitleFromUpdate(t *testing.T) {
	got, ok := NewTitleFromUpdate("update the milk task to buy bread")
	if !ok || got != "buy bread" {
		t.Fatalf("got %q/%v, want buy bread/true", got, ok)
	}

	got, ok = NewTitleFromUpdate("change buy milk to buy oat milk")
	if !ok || got != "buy oat milk" {
		t.Fatalf("got %q/%v, want buy oat milk/true", got, ok)
	}

	if _, ok := NewTitleFromUpdate("update the milk task"); ok {
		t.Fatal("message without replacement should report no new title")
	}
	if _, ok := NewTitleFromUpdate("update the milk task to"); ok {
		t.Fatal("bare trailing to should report no new title")
	}
	if _, ok := NewTitleFromUpdate("no verbs here"); ok {
		t.Fatal("non-update message should report no new title")
	}
}
