package email

import (
	"context"
	"fmt"
	"log/slog"

	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Provider names accepted by EMAIL_PROVIDER.
const (
	ProviderLog     = "log"
	ProviderResend  = "resend"
	ProviderMailgun = "mailgun"
)

// LogSender logs emails instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "birthday email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// MailgunSender sends emails via the Mailgun API.
type MailgunSender struct {
	client *mg.MailgunImpl
	from   string
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, body string) error {
	msg := s.client.NewMessage(s.from, subject, "", to)
	msg.SetHtml(body)
	if _, _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Options selects and configures a provider.
type Options struct {
	Env           string
	Provider      string
	From          string
	ResendAPIKey  string
	MailgunDomain string
	MailgunAPIKey string
}

// NewSender returns a LogSender for ENV=local or provider "log", otherwise
// the configured API sender.
func NewSender(opts Options, logger *slog.Logger) (Sender, error) {
	if opts.Env == "local" || opts.Provider == ProviderLog || opts.Provider == "" {
		return NewLogSender(logger), nil
	}

	switch opts.Provider {
	case ProviderResend:
		return &ResendSender{
			client: resend.NewClient(opts.ResendAPIKey),
			from:   opts.From,
		}, nil
	case ProviderMailgun:
		return &MailgunSender{
			client: mg.NewMailgun(opts.MailgunDomain, opts.MailgunAPIKey),
			from:   opts.From,
		}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", opts.Provider)
	}
}
