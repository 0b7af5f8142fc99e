package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"gopkg.in/telebot.v4"
)

// handlerTimeout bounds the store and scrape calls of a single command.
const handlerTimeout = 30 * time.Second

// Bot contains the bot API instance and the services its commands drive.
type Bot struct {
	bot     API
	log     *slog.Logger
	tracker Tracker
	runner  Runner
	chats   ChatStore
}

func NewBot(
	log *slog.Logger,
	token string,
	poller time.Duration,
	tracker Tracker,
	runner Runner,
	chats ChatStore,
) (*Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", bot.Me.Username)

	botInstance := &Bot{bot: bot, log: log, tracker: tracker, runner: runner, chats: chats}

	botInstance.registerRoutes()

	return botInstance, nil
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// Report sends a one-line cycle summary to every registered chat.
// Delivery failures are collected; one failing chat does not stop the others.
func (b *Bot) Report(ctx context.Context, outcome *models.BatchOutcome) error {
	const opn = "bot.Report"
	log := b.log.With("op", opn, "run_id", outcome.RunID)

	chatIDs, err := b.chats.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to get subscribed chats: %w", opn, err)
	}

	text := summary(outcome)
	var errs []error
	for _, id := range chatIDs {
		if _, err = b.bot.Send(&telebot.Chat{ID: id}, text); err != nil {
			log.WarnContext(ctx, "Failed to send report", "chat_id", id, "error", err)
			errs = append(errs, err)
		}
	}

	if err = errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	// Public routes.
	b.bot.Handle("/start", b.startHandler)
	b.bot.Handle("/stop", b.stopHandler)
	b.bot.Handle("/track", b.trackHandler)
	b.bot.Handle("/subscribe", b.subscribeHandler)
	b.bot.Handle("/refresh", b.refreshHandler)
}

func summary(outcome *models.BatchOutcome) string {
	runID := outcome.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("Refresh %s: %d updated, %d skipped", runID, len(outcome.Updated), len(outcome.Skipped))
}
