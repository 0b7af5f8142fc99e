package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/Houeta/pricewatch/internal/services/tracker"
	"gopkg.in/telebot.v4"
)

// startHandler process command /start.
func (b *Bot) startHandler(tctx telebot.Context) error {
	b.log.Info("User started the bot", "username", tctx.Sender().Username)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.chats.SubscribeChat(ctx, tctx.Chat().ID); err != nil {
		return fmt.Errorf("failed to subscribe chat: %w", err)
	}

	msg := "Hello! This chat will receive refresh reports.\n" +
		"/track <url> starts tracking a product\n" +
		"/subscribe <url> <email> sends price alerts to an email\n" +
		"/refresh runs a refresh cycle now\n" +
		"/stop stops the reports"
	if err := tctx.Send(msg); err != nil {
		return fmt.Errorf("failed to send greeting message: %w", err)
	}

	return nil
}

// stopHandler process command /stop.
func (b *Bot) stopHandler(tctx telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.chats.UnsubscribeChat(ctx, tctx.Chat().ID); err != nil {
		return fmt.Errorf("failed to unsubscribe chat: %w", err)
	}

	return tctx.Send("Reports stopped.")
}

// trackHandler process command /track <url>.
func (b *Bot) trackHandler(tctx telebot.Context) error {
	args := tctx.Args()
	if len(args) != 1 {
		return tctx.Send("Usage: /track <url>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	product, err := b.tracker.Track(ctx, args[0])
	switch {
	case errors.Is(err, tracker.ErrInvalidURL):
		return tctx.Send("That does not look like a product URL.")
	case err != nil:
		b.log.Error("Failed to track product", "op", "bot.trackHandler", "url", args[0], "error", err)
		return tctx.Send("Could not read that product page, try again later.")
	}

	return tctx.Send(fmt.Sprintf("Tracking %s at %s %s", product.Title, product.CurrentPrice, product.Currency))
}

// subscribeHandler process command /subscribe <url> <email>.
func (b *Bot) subscribeHandler(tctx telebot.Context) error {
	args := tctx.Args()
	if len(args) != 2 { //nolint:mnd // url and email
		return tctx.Send("Usage: /subscribe <url> <email>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	err := b.tracker.Subscribe(ctx, args[0], args[1])
	switch {
	case errors.Is(err, tracker.ErrInvalidURL), errors.Is(err, tracker.ErrInvalidEmail):
		return tctx.Send("Usage: /subscribe <url> <email>")
	case errors.Is(err, repository.ErrProductNotFound):
		return tctx.Send("This product is not tracked yet, use /track first.")
	case err != nil:
		b.log.Error("Failed to subscribe", "op", "bot.subscribeHandler", "url", args[0], "error", err)
		return tctx.Send("Subscription failed, try again later.")
	}

	return tctx.Send("Subscribed " + args[1])
}

// refreshHandler process command /refresh.
func (b *Bot) refreshHandler(tctx telebot.Context) error {
	outcome, err := b.runner.Run(context.Background())
	if err != nil {
		b.log.Error("Refresh cycle failed", "op", "bot.refreshHandler", "error", err)
		return tctx.Send("Refresh failed: products could not be loaded.")
	}

	return tctx.Send(summary(outcome))
}
