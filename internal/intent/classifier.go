package intent

import "regexp"

// Intent is the operation kind a chat message expresses.
type Intent string

const (
	IntentAdd      Intent = "add"
	IntentList     Intent = "list"
	IntentComplete Intent = "complete"
	IntentUpdate   Intent = "update"
	IntentDelete   Intent = "delete"
	IntentNone     Intent = "none"
)

// Match is a classification hit. RawTitle is populated only for add,
// holding the untrimmed title capture from the matched pattern.
type Match struct {
	Intent   Intent
	RawTitle string
}

type rule struct {
	intent     Intent
	re         *regexp.Regexp
	titleGroup int // capture group holding the raw title, 0 = none
}

// rules are evaluated top to bottom; the first hit wins. Several patterns
// are textually compatible ("mark the report task as done" could loosely
// read as update or complete), so the fixed order is what makes
// classification deterministic: add > list > complete > update > delete.
var rules = []rule{
	// add: "add a task to buy milk", "create a todo for calling mom"
	{IntentAdd, regexp.MustCompile(`(?i)\b(?:add|create|make|new)\s+(?:a\s+)?(?:task|todo|to-do|item)\s+(?:to|for|about|that|which)\s+(.+)`), 1},
	// add: "add buy milk as a task", "make walk the dog a todo"
	{IntentAdd, regexp.MustCompile(`(?i)\b(?:add|create|make|new)\s+(.+?)\s+(?:as\s+a\s+)?(?:task|todo|to-do)\b`), 1},
	// add: "add buy milk to my list"
	{IntentAdd, regexp.MustCompile(`(?i)\b(?:add|create|make|new)\s+(.+?)\s+to\s+(?:my\s+)?(?:list|tasks)\b`), 1},
	// list: "show my pending tasks", "view the list"
	{IntentList, regexp.MustCompile(`(?i)\b(?:show|list|display|see|view)\b.*\b(?:tasks|todos|to-dos|items|list)\b`), 0},
	// complete: "complete the milk task", "mark task as done"
	{IntentComplete, regexp.MustCompile(`(?i)\b(?:complete|finish|done|mark)\b.*\b(?:task|todo|item)s?\b`), 0},
	// update: "update the milk task", "change buy milk to buy bread"
	{IntentUpdate, regexp.MustCompile(`(?i)\b(?:update|change|modify|edit)\b.*\b(?:task|todo)s?\b`), 0},
	{IntentUpdate, regexp.MustCompile(`(?i)\b(?:update|change|modify|edit)\s+.+\s+to\s+.+`), 0},
	// delete: "delete the milk task", "remove that item"
	{IntentDelete, regexp.MustCompile(`(?i)\b(?:delete|remove|eliminate)\b.*\b(?:task|todo|item)s?\b`), 0},
}

// Classify maps a free-text message to an Intent. The scan is a single
// ordered pass; once a pattern matches, later intents are not considered.
func Classify(text string) Match {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		match := Match{Intent: r.intent}
		if r.titleGroup > 0 && r.titleGroup < len(m) {
			match.RawTitle = m[r.titleGroup]
		}
		return match
	}
	return Match{Intent: IntentNone}
}
