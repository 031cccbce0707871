package store

import (
	"context"
	"fmt"
)

// RecordMessage stores a delivered Telegram message id for an item.
func (s *Store) RecordMessage(ctx context.Context, msg Message) error {
	kind := msg.Kind
	if kind == "" {
		kind = MessageMedia
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO messages (message_id, item_id, chat_id, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ItemID, msg.ChatID, kind, s.timestamp(),
	); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// ListMessages returns the messages recorded for an item in delivery order.
func (s *Store) ListMessages(ctx context.Context, itemID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT message_id, item_id, chat_id, kind, created_at FROM messages WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg        Message
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&msg.MessageID, &msg.ItemID, &msg.ChatID, &kind, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = MessageKind(kind)
		if created, err := parseTimeString(createdRaw); err == nil {
			msg.CreatedAt = created
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
