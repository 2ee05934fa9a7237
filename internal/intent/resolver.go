package intent

import (
	"strings"

	"github.com/basket/chatdo/internal/persistence"
)

// Resolve picks the target task for complete/update/delete: the first
// candidate (in store order) with any title word appearing as a substring
// of the lower-cased message. Returns nil when nothing overlaps.
//
// A one-word overlap against an unrelated task is accepted: this is a
// deliberate recall-over-precision trade-off, kept simple on purpose.
// Callers apply their own positional fallback when this returns nil.
func Resolve(candidates []persistence.Task, message string) *persistence.Task {
	lower := strings.ToLower(message)
	for i := range candidates {
		for _, word := range strings.Fields(strings.ToLower(candidates[i].Title)) {
			if strings.Contains(lower, word) {
				return &candidates[i]
			}
		}
	}
	return nil
}
