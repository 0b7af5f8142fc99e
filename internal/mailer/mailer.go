// Package mailer delivers rendered notification emails over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/wneessen/go-mail"
)

// ErrNoSender is returned when the message has no From address.
var ErrNoSender = errors.New("sender address is empty")

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends one message per notification with every recipient in Bcc.
type SMTPMailer struct {
	log    *slog.Logger
	client sender
	from   string
}

// New creates an SMTP mailer. Authentication is enabled only when a username is set.
func New(log *slog.Logger, cfg Config) (*SMTPMailer, error) {
	const opn = "mailer.New"

	if cfg.From == "" {
		return nil, fmt.Errorf("%s: %w", opn, ErrNoSender)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", opn, err)
	}

	return &SMTPMailer{log: log, client: client, from: cfg.From}, nil
}

// Send delivers content to recipients. An empty recipient list sends nothing.
func (m *SMTPMailer) Send(ctx context.Context, content models.EmailContent, recipients []string) error {
	const opn = "mailer.Send"
	log := m.log.With("op", opn)

	if len(recipients) == 0 {
		return nil
	}

	msg, err := buildMessage(m.from, content, recipients)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	if err = m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%s: failed to send email: %w", opn, err)
	}

	log.DebugContext(ctx, "email sent", "subject", content.Subject, "recipients", len(recipients))

	return nil
}

func buildMessage(from string, content models.EmailContent, recipients []string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	// Recipients must not see each other.
	if err := msg.To(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.Bcc(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextHTML, content.Body)

	return msg, nil
}
