// Package email delivers plain-text notifications over SMTP. Mail is an
// optional feature: with no SMTP host configured the mailer stays disabled
// and callers skip sending.
package email

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	cfg "github.com/ragchat-app/ragchat/internal/config"
	"github.com/ragchat-app/ragchat/internal/core"
)

type SMTPMailer struct {
	client *mail.Client
	from   string
	log    *zap.Logger
}

var _ core.EmailSender = (*SMTPMailer)(nil)

// NewSMTPMailer builds the mailer. A missing SMTP_HOST yields a disabled
// mailer, not an error, so the service runs fine without email.
func NewSMTPMailer(cfg *cfg.Config, log *zap.Logger) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		log.Info("SMTP not configured, email disabled")
		return &SMTPMailer{log: log}, nil
	}
	if cfg.MailFrom == "" {
		return nil, fmt.Errorf("MAIL_FROM not set")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.MailFrom, log: log}, nil
}

func (m *SMTPMailer) Enabled() bool { return m.client != nil }

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if !m.Enabled() {
		return fmt.Errorf("email is not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
