package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the mail server settings
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether enough settings are present to send mail
func (c SMTPConfig) Configured() bool {
	return c.Server != "" && c.Username != "" && c.Password != ""
}

// SMTPMailer implements Mailer over SMTP with STARTTLS and plain auth
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPMailer returns a mailer for cfg, or nil when cfg is incomplete so that
// the caller falls back to ErrNotConfigured.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Configured() {
		logger.Warn("smtp settings incomplete, notifications disabled",
			"server_set", cfg.Server != "",
			"user_set", cfg.Username != "")
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers one plain-text message
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if m == nil {
		return ErrNotConfigured
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.cfg.Server,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	m.logger.Debug("sending email", "to", to, "subject", subject, "server", m.cfg.Server)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
