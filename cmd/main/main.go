package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Houeta/pricewatch/internal/bot"
	"github.com/Houeta/pricewatch/internal/config"
	"github.com/Houeta/pricewatch/internal/mailer"
	"github.com/Houeta/pricewatch/internal/metrics"
	"github.com/Houeta/pricewatch/internal/notify"
	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/Houeta/pricewatch/internal/repository/postgres"
	"github.com/Houeta/pricewatch/internal/repository/sqlite"
	"github.com/Houeta/pricewatch/internal/scheduler"
	"github.com/Houeta/pricewatch/internal/scraper"
	"github.com/Houeta/pricewatch/internal/server"
	"github.com/Houeta/pricewatch/internal/services/refresher"
	"github.com/Houeta/pricewatch/internal/services/tracker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

const shutdownTimeout = 15 * time.Second

// storage is what every backend provides.
type storage interface {
	repository.Store
	repository.ChatStore
	Close() error
}

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	store, err := openStorage(ctx, logger, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}

	telemetry := metrics.NewDefault()

	fetcher := scraper.NewRetryPolicy(logger,
		scraper.NewHTTPScraper(logger, cfg.Scrape.Timeout, cfg.Scrape.RPS),
		scraper.WithAttempts(cfg.Scrape.Attempts),
		scraper.WithDelay(cfg.Scrape.Delay),
		scraper.WithBackoff(scraper.ParseBackoff(cfg.Scrape.Backoff)),
		scraper.WithObserver(telemetry),
	)

	smtp, err := mailer.New(logger, mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		log.Fatalf("Failed to init mailer: %v", err)
	}
	dispatcher := notify.NewDispatcher(logger, smtp)

	cycle := refresher.New(logger, fetcher, store, notify.NewClassifier(cfg.Refresh.DiscountThreshold), dispatcher,
		refresher.WithConcurrency(cfg.Refresh.Concurrency),
		refresher.WithTimeout(cfg.Refresh.Timeout),
		refresher.WithRecorder(telemetry),
	)
	products := tracker.New(logger, fetcher, store, dispatcher)

	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := server.New(logger, cycle, store, products, telemetry.Handler()).HTTPServer(cfg.HTTPAddr)

	// The bot is optional; without a token the refresh reports are not sent anywhere.
	var reporter scheduler.Reporter
	var priceBot *bot.Bot
	if cfg.Tg.Token != "" {
		priceBot, err = bot.NewBot(logger, cfg.Tg.Token, cfg.Tg.Timeout, products, cycle, store)
		if err != nil {
			log.Fatalf("Failed to init bot: %v", err)
		}
		reporter = priceBot
		go priceBot.Start()
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx, logger, cycle, reporter, cfg.Refresh.Interval)
	}()

	go func() {
		logger.InfoContext(ctx, "HTTP server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if priceBot != nil {
		priceBot.Stop()
	}

	// The scheduler reacts to ctx; wait for the running cycle to return.
	wg.Wait()

	if err = store.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}

	// Log graceful shutdown completion.
	logger.Info("Application stopped gracefully.")
}

// openStorage opens the configured backend.
func openStorage(ctx context.Context, logger *slog.Logger, cfg config.Storage) (storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.NewRepository(ctx, logger, cfg.PostgresDSN)
	default:
		return sqlite.NewRepository(ctx, logger, cfg.Path)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
