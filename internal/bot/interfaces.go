package bot

import (
	"context"

	"github.com/Houeta/pricewatch/internal/models"
	"gopkg.in/telebot.v4"
)

type API interface {
	// Handle lets you set the handler for some command name or one of the supported endpoints. It also applies middleware if such passed to the function.
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
	// Start brings bot into motion by consuming incoming updates (see Bot.Updates channel).
	Start()
	// Stop gracefully shuts the poller down.
	Stop()

	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Tracker adds products and subscribers.
type Tracker interface {
	Track(ctx context.Context, rawURL string) (*models.TrackedProduct, error)
	Subscribe(ctx context.Context, rawURL, email string) error
}

// Runner runs one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (*models.BatchOutcome, error)
}

// ChatStore keeps the chats that receive refresh reports.
type ChatStore interface {
	SubscribeChat(ctx context.Context, chatID int64) error
	UnsubscribeChat(ctx context.Context, chatID int64) error
	GetSubscribedChats(ctx context.Context) ([]int64, error)
}
