package sqlite_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportChats_Integration(t *testing.T) {
	repo := newTestDB(t)
	ctx := t.Context()

	require.NoError(t, repo.SubscribeChat(ctx, -100))
	require.NoError(t, repo.SubscribeChat(ctx, 42))
	require.NoError(t, repo.SubscribeChat(ctx, 42))

	chats, err := repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{-100, 42}, chats)

	require.NoError(t, repo.UnsubscribeChat(ctx, -100))

	chats, err = repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, chats)
}

func TestSubscribeChat_Failure(t *testing.T) {
	repo, mock := newMockedRepo(t)
	mock.ExpectExec("INSERT OR IGNORE INTO report_chats").WillReturnError(assert.AnError)

	err := repo.SubscribeChat(t.Context(), 7)

	require.ErrorIs(t, err, assert.AnError)
	require.ErrorContains(t, err, "repository.sqlite.SubscribeChat")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribeChat_Failure(t *testing.T) {
	repo, mock := newMockedRepo(t)
	mock.ExpectExec("DELETE FROM report_chats WHERE chat_id").WillReturnError(assert.AnError)

	err := repo.UnsubscribeChat(t.Context(), 7)

	require.ErrorIs(t, err, assert.AnError)
	require.ErrorContains(t, err, "repository.sqlite.UnsubscribeChat")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscribedChats_Failures(t *testing.T) {
	ctx := t.Context()

	t.Run("error: cannot execute query", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectQuery("SELECT chat_id FROM report_chats").WillReturnError(assert.AnError)

		_, err := repo.GetSubscribedChats(ctx)

		require.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error: failed to scan chat_id", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectQuery("SELECT chat_id FROM report_chats").
			WillReturnRows(sqlmock.NewRows([]string{"chat_id"}).AddRow("invalid_id"))

		_, err := repo.GetSubscribedChats(ctx)

		require.ErrorContains(t, err, "failed to scan chat_id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error: rows error", func(t *testing.T) {
		repo, mock := newMockedRepo(t)
		mock.ExpectQuery("SELECT chat_id FROM report_chats").
			WillReturnRows(sqlmock.NewRows([]string{"chat_id"}).AddRow(1).RowError(0, assert.AnError))

		_, err := repo.GetSubscribedChats(ctx)

		require.ErrorContains(t, err, "rows iteration error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
