package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SubscribeChat registers a Telegram chat for refresh reports.
func (r *Repository) SubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.postgres.SubscribeChat"

	_, err := r.pool.Exec(ctx, "INSERT INTO report_chats (chat_id) VALUES ($1) ON CONFLICT DO NOTHING", chatID)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// UnsubscribeChat removes the chat from refresh reports.
func (r *Repository) UnsubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.postgres.UnsubscribeChat"

	if _, err := r.pool.Exec(ctx, "DELETE FROM report_chats WHERE chat_id = $1", chatID); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// GetSubscribedChats returns the chats receiving refresh reports.
func (r *Repository) GetSubscribedChats(ctx context.Context) ([]int64, error) {
	const opn = "repository.postgres.GetSubscribedChats"

	rows, err := r.pool.Query(ctx, "SELECT chat_id FROM report_chats ORDER BY subscribed_at, chat_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	chatIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scan chat_id: %w", opn, err)
	}

	return chatIDs, nil
}
