package channels

import (
	"context"

	"github.com/basket/chatdo/internal/intent"
)

// Channel defines the interface for a messaging platform integration.
type Channel interface {
	// Name returns the unique name of the channel (e.g., "telegram").
	Name() string

	// Start begins listening for messages. It should block until the context is canceled or a fatal error occurs.
	Start(ctx context.Context) error
}

// ChatRouter is the routing surface a channel needs. *intent.Router
// satisfies it; tests substitute a fake.
type ChatRouter interface {
	Route(ctx context.Context, userID, message string) intent.Outcome
}
