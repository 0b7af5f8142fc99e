package sqlite

import (
	"context"
	"fmt"
	"time"
)

// SubscribeChat registers a Telegram chat for refresh reports. Repeated calls are no-ops.
func (r *Repository) SubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.sqlite.SubscribeChat"

	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO report_chats (chat_id, subscribed_at) VALUES (?, ?)",
		chatID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// UnsubscribeChat removes the chat from refresh reports.
func (r *Repository) UnsubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.sqlite.UnsubscribeChat"

	if _, err := r.db.ExecContext(ctx, "DELETE FROM report_chats WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// GetSubscribedChats returns the chats receiving refresh reports, oldest first.
func (r *Repository) GetSubscribedChats(ctx context.Context) ([]int64, error) {
	const opn = "repository.sqlite.GetSubscribedChats"

	rows, err := r.db.QueryContext(ctx, "SELECT chat_id FROM report_chats ORDER BY subscribed_at, chat_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	var chatIDs []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: failed to scan chat_id: %w", opn, err)
		}
		chatIDs = append(chatIDs, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return chatIDs, nil
}
