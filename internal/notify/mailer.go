package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Email is a rendered message ready for delivery
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a rendered email
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer writes emails to the log instead of sending them
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a mailer for development setups without SMTP
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

// Send logs the email
func (m *LogMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info().
		Str("to", e.To).
		Str("subject", e.Subject).
		Str("body", e.Text).
		Msg("email")
	return nil
}
