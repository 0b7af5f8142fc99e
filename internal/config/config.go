package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrEmptySMTPHost        = errors.New("error getting PW_SMTP_HOST: variable not specified or contains an empty string")
	ErrEmptySMTPFrom        = errors.New("error getting PW_SMTP_FROM: variable not specified or contains an empty string")
	ErrEmptyPostgresDSN     = errors.New("error getting PW_POSTGRES_DSN: required when PW_STORAGE_DRIVER is postgres")
	ErrUnknownStorageDriver = errors.New("error getting PW_STORAGE_DRIVER: expected sqlite or postgres")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string // Env is the current environment: local, development, production.
	HTTPAddr string
	Storage  Storage
	Refresh  Refresh
	Scrape   Scrape
	SMTP     SMTP
	Tg       Telegram
}

type Storage struct {
	Driver      string // Driver is either sqlite or postgres.
	Path        string // Path is the sqlite database file.
	PostgresDSN string
}

type Refresh struct {
	Interval          time.Duration // Interval of the in-process scheduler; zero leaves triggering to GET /api/cron.
	Timeout           time.Duration // Timeout is the wall-clock budget of one cycle.
	Concurrency       int
	DiscountThreshold int // DiscountThreshold in percent; zero disables the discount rule.
}

type Scrape struct {
	Attempts int
	Delay    time.Duration
	Backoff  string // Backoff is fixed or exponential.
	RPS      float64
	Timeout  time.Duration
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Telegram struct {
	Token   string        // Token is a unique telegram bot token; the bot is disabled when empty.
	Timeout time.Duration // Timeout is a poller timeout duration.
}

// MustLoad loads the configuration from environment variables and returns a Config struct.
func MustLoad() *Config {
	// Automatically binds environment variables to config keys
	viper.SetEnvPrefix("PW")
	viper.AutomaticEnv()

	// optional args
	viper.SetDefault("ENV", "production")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("STORAGE_DRIVER", DriverSQLite)
	viper.SetDefault("STORAGE_PATH", "pricewatch.db")
	viper.SetDefault("REFRESH_INTERVAL", "0s")
	viper.SetDefault("REFRESH_TIMEOUT", "60s")
	viper.SetDefault("REFRESH_CONCURRENCY", 8)
	viper.SetDefault("DISCOUNT_THRESHOLD", 40)
	viper.SetDefault("SCRAPE_ATTEMPTS", 3)
	viper.SetDefault("SCRAPE_DELAY", "2s")
	viper.SetDefault("SCRAPE_BACKOFF", "fixed")
	viper.SetDefault("SCRAPE_RPS", 2)
	viper.SetDefault("SCRAPE_TIMEOUT", "15s")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("TELEGRAM_TIMEOUT", "15s")

	if viper.GetString("SMTP_HOST") == "" {
		panic(ErrEmptySMTPHost)
	}
	if viper.GetString("SMTP_FROM") == "" {
		panic(ErrEmptySMTPFrom)
	}

	driver := viper.GetString("STORAGE_DRIVER")
	switch driver {
	case DriverSQLite:
	case DriverPostgres:
		if viper.GetString("POSTGRES_DSN") == "" {
			panic(ErrEmptyPostgresDSN)
		}
	default:
		panic(ErrUnknownStorageDriver)
	}

	return &Config{
		Env:      viper.GetString("ENV"),
		HTTPAddr: viper.GetString("HTTP_ADDR"),
		Storage: Storage{
			Driver:      driver,
			Path:        viper.GetString("STORAGE_PATH"),
			PostgresDSN: viper.GetString("POSTGRES_DSN"),
		},
		Refresh: Refresh{
			Interval:          viper.GetDuration("REFRESH_INTERVAL"),
			Timeout:           viper.GetDuration("REFRESH_TIMEOUT"),
			Concurrency:       viper.GetInt("REFRESH_CONCURRENCY"),
			DiscountThreshold: viper.GetInt("DISCOUNT_THRESHOLD"),
		},
		Scrape: Scrape{
			Attempts: viper.GetInt("SCRAPE_ATTEMPTS"),
			Delay:    viper.GetDuration("SCRAPE_DELAY"),
			Backoff:  viper.GetString("SCRAPE_BACKOFF"),
			RPS:      viper.GetFloat64("SCRAPE_RPS"),
			Timeout:  viper.GetDuration("SCRAPE_TIMEOUT"),
		},
		SMTP: SMTP{
			Host:     viper.GetString("SMTP_HOST"),
			Port:     viper.GetInt("SMTP_PORT"),
			Username: viper.GetString("SMTP_USERNAME"),
			Password: viper.GetString("SMTP_PASSWORD"),
			From:     viper.GetString("SMTP_FROM"),
		},
		Tg: Telegram{
			Token:   viper.GetString("TELEGRAM_TOKEN"),
			Timeout: viper.GetDuration("TELEGRAM_TIMEOUT"),
		},
	}
}
