package intent

import (
	"regexp"
	"strings"

	"github.com/basket/chatdo/internal/persistence"
)

// ExtractTitle cleans a raw title capture: everything after the first
// sentence-terminating period is dropped, then surrounding whitespace is
// trimmed. Returns "" when nothing usable remains.
func ExtractTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "."); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// StatusFilter scans the message for status tokens. "pending"/"incomplete"
// win over "completed"/"done"; neither means no filter (all tasks).
func StatusFilter(message string) persistence.TaskStatus {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "pending") || strings.Contains(lower, "incomplete") {
		return persistence.TaskStatusPending
	}
	if strings.Contains(lower, "completed") || strings.Contains(lower, "done") {
		return persistence.TaskStatusCompleted
	}
	return ""
}

var (
	updateVerbRe = regexp.MustCompile(`(?i)\b(?:update|change|modify|edit)\s+(.+)`)
	toSplitRe    = regexp.MustCompile(`(?i)\bto\b`)
)

// NewTitleFromUpdate pulls replacement content out of an update message:
// take everything after the update verb, then everything after the first
// standalone "to". Returns ok=false when the message carries no
// replacement, in which case the title is left unchanged.
func NewTitleFromUpdate(message string) (string, bool) {
	m := updateVerbRe.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	loc := toSplitRe.FindStringIndex(m[1])
	if loc == nil {
		return "", false
	}
	newTitle := strings.TrimSpace(m[1][loc[1]:])
	// Trailing task-noise like "update the milk task to buy bread" keeps
	// "buy bread"; a bare "update the milk task to" has nothing to use.
	if newTitle == "" {
		return "", false
	}
	return newTitle, true
}
