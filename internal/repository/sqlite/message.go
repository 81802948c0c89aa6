package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/skillswap/internal/model"
)

// CreateMessage stores one chat line. Sender display data is filled in from
// the users table.
func (db *DB) CreateMessage(ctx context.Context, m *model.Message) error {
	m.ID = xid.New().String()
	m.CreatedAt = now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (id, swap_id, sender_id, receiver_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SwapID, m.Sender.ID, m.ReceiverID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting message for swap %s: %w", m.SwapID, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT name, email, profile_image FROM users WHERE id = ?`, m.Sender.ID,
	).Scan(&m.Sender.Name, &m.Sender.Email, &m.Sender.ProfileImage)
	if err != nil {
		return fmt.Errorf("sqlite: loading sender %s: %w", m.Sender.ID, err)
	}
	return nil
}

// ListMessages returns the chat history of a swap, oldest first.
func (db *DB) ListMessages(ctx context.Context, swapID string) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.swap_id, m.receiver_id, m.content, m.created_at,
			u.id, u.name, u.email, u.profile_image
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.swap_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		swapID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages for swap %s: %w", swapID, err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(
			&m.ID, &m.SwapID, &m.ReceiverID, &m.Content, &m.CreatedAt,
			&m.Sender.ID, &m.Sender.Name, &m.Sender.Email, &m.Sender.ProfileImage,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating message rows: %w", err)
	}
	return messages, nil
}
