// Package repository defines the product store contract shared by the storage backends.
package repository

import (
	"context"
	"errors"

	"github.com/Houeta/pricewatch/internal/models"
)

var (
	// ErrProductNotFound is returned when no product is stored under the requested URL.
	ErrProductNotFound = errors.New("product not found")
	// ErrSubscriberExists is returned when the email is already subscribed to the product.
	ErrSubscriberExists = errors.New("subscriber already exists")
)

// Store keeps tracked products keyed by their URL.
type Store interface {
	// ListAll returns every tracked product with its history and subscribers.
	ListAll(ctx context.Context) ([]models.TrackedProduct, error)
	// Get returns the product stored under url or ErrProductNotFound.
	Get(ctx context.Context, url string) (*models.TrackedProduct, error)
	// Upsert creates or updates the product. Stored history points are never
	// rewritten; only points past the stored tail are appended.
	Upsert(ctx context.Context, product *models.TrackedProduct) error
	// AddSubscriber subscribes email to the product stored under url.
	AddSubscriber(ctx context.Context, url, email string) error
}

// ChatStore keeps the Telegram chats that receive refresh reports.
type ChatStore interface {
	SubscribeChat(ctx context.Context, chatID int64) error
	UnsubscribeChat(ctx context.Context, chatID int64) error
	GetSubscribedChats(ctx context.Context) ([]int64, error)
}
