package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"news_digest/internal/config"
	"news_digest/internal/model"
)

type mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Email sends the digest as a single multipart text and HTML message.
type Email struct {
	client mailer
	from   string
	to     []string
	log    *slog.Logger
	now    func() time.Time
}

// NewEmail creates an SMTP client for cfg. It does not connect until Send.
func NewEmail(cfg *config.SMTPConfig, log *slog.Logger) (*Email, error) {
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
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newEmail(client, cfg.From, cfg.To, log), nil
}

func newEmail(client mailer, from, to string, log *slog.Logger) *Email {
	var rcpts []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			rcpts = append(rcpts, addr)
		}
	}
	return &Email{client: client, from: from, to: rcpts, log: log, now: time.Now}
}

// Send mails the digest with the given subject.
func (e *Email) Send(ctx context.Context, subject string, digest []model.DigestEntry) error {
	if len(digest) == 0 {
		return nil
	}

	msg, err := e.message(subject, digest)
	if err != nil {
		return err
	}
	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	e.log.Info("sent email", "to", strings.Join(e.to, ","), "entries", len(digest))
	return nil
}

func (e *Email) message(subject string, digest []model.DigestEntry) (*mail.Msg, error) {
	generated := e.now()

	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return nil, fmt.Errorf("set from %q: %w", e.from, err)
	}
	if err := msg.To(e.to...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(generated)
	msg.SetBodyString(mail.TypeTextPlain, FormatText(digest, generated))
	msg.AddAlternativeString(mail.TypeTextHTML, FormatHTML(digest, generated))
	return msg, nil
}
