// Package notify decides which event a refreshed product triggers and delivers
// the matching email to the product subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Houeta/pricewatch/internal/models"
)

// ErrDispatch marks a notification that could not be handed to the mail transport.
var ErrDispatch = errors.New("notification dispatch failed")

// Mailer sends one message to a set of recipients.
type Mailer interface {
	Send(ctx context.Context, content models.EmailContent, recipients []string) error
}

// Dispatcher builds category messages and hands them to the Mailer.
type Dispatcher struct {
	log    *slog.Logger
	mailer Mailer
}

// NewDispatcher creates a new Dispatcher instance.
func NewDispatcher(log *slog.Logger, mailer Mailer) *Dispatcher {
	return &Dispatcher{log: log, mailer: mailer}
}

// Notify sends a single message for the category to all recipients.
// It does not retry; a transport error is returned wrapped with ErrDispatch.
func (d *Dispatcher) Notify(
	ctx context.Context,
	product models.TrackedProduct,
	category models.Category,
	recipients []string,
) error {
	const opn = "notify.Dispatcher.Notify"
	log := d.log.With("op", opn, "url", product.URL, "category", category)

	if len(recipients) == 0 {
		log.DebugContext(ctx, "No recipients, nothing to send")
		return nil
	}

	content, err := BuildMessage(product, category)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", opn, ErrDispatch, err)
	}

	if err = d.mailer.Send(ctx, content, recipients); err != nil {
		return fmt.Errorf("%s: %w: %w", opn, ErrDispatch, err)
	}
	log.InfoContext(ctx, "Notification sent", "recipients", len(recipients))

	return nil
}
