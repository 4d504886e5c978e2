// Package delivery sends a finished digest to its single output channel:
// email, Telegram or the console.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"news_digest/internal/config"
	"news_digest/internal/model"
)

// Sink delivers a digest. Sending an empty digest does nothing.
type Sink interface {
	Send(ctx context.Context, subject string, digest []model.DigestEntry) error
}

// New builds the sink selected by cfg.Delivery.
func New(cfg *config.Config, log *slog.Logger) (Sink, error) {
	switch d := cfg.Delivery(); d {
	case config.DeliveryEmail:
		return NewEmail(cfg.SMTP, log)
	case config.DeliveryTelegram:
		return NewTelegram(cfg.Telegram, log)
	case config.DeliveryConsole:
		return NewConsole(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown delivery %q", d)
	}
}
