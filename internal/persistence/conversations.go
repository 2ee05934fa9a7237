package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationTitle derives a conversation title from its opening message:
// "Chat started <first 30 chars>..." with the ellipsis only when truncated.
func ConversationTitle(firstMessage string) string {
	runes := []rune(strings.TrimSpace(firstMessage))
	if len(runes) > 30 {
		return "Chat started " + string(runes[:30]) + "..."
	}
	return "Chat started " + string(runes)
}

// CreateConversation starts a new conversation for the user.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	convID := uuid.NewString()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, title, created_at, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
		`, convID, userID, title)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, userID, convID)
}

// GetConversation returns a conversation by id, scoped to the owning user.
func (s *Store) GetConversation(ctx context.Context, userID, convID string) (*Conversation, error) {
	var conv Conversation
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ? AND user_id = ?;
	`, convID, userID)
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently
// active first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ? OFFSET ?;
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation rows: %w", err)
	}
	return out, nil
}

// AppendMessage records a message in a conversation and bumps the
// conversation's updated_at. Sender must be "user" or "assistant".
func (s *Store) AppendMessage(ctx context.Context, userID, convID, sender, content string) (*Message, error) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	switch sender {
	case "user", "assistant":
	default:
		return nil, fmt.Errorf("invalid sender %q", sender)
	}

	var msgID int64
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin append tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// Verify ownership before writing.
		var one int
		if err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM conversations WHERE id = ? AND user_id = ?;
		`, convID, userID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select conversation owner: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sender, content, created_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP);
		`, convID, sender, content)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		msgID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, convID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	var msg Message
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages WHERE id = ?;
	`, msgID)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, userID, convID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	// Ownership check keeps one user from reading another's conversation.
	if _, err := s.GetConversation(ctx, userID, convID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC
		LIMIT ?;
	`, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message rows: %w", err)
	}
	return out, nil
}
