package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/multierr"

	"news_digest/internal/config"
	"news_digest/internal/model"
)

// Rate limit: ~20 messages/sec max for Telegram.
const telegramPace = 50 * time.Millisecond

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts one message per digest entry to a chat or channel.
type Telegram struct {
	api     telegramAPI
	chatID  int64
	channel string
	pace    time.Duration
	log     *slog.Logger
}

// NewTelegram connects to the Bot API with the configured token.
func NewTelegram(cfg *config.TelegramConfig, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newTelegram(api, cfg.ChatID, log)
}

func newTelegram(api telegramAPI, chat string, log *slog.Logger) (*Telegram, error) {
	t := &Telegram{api: api, pace: telegramPace, log: log}

	chat = strings.TrimSpace(chat)
	switch {
	case strings.HasPrefix(chat, "@") && len(chat) > 1:
		t.channel = chat
	default:
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, &model.ConfigError{
				Entry: "telegram.chat_id",
				Err:   errors.New("must be a numeric chat id or an @channel name"),
			}
		}
		t.chatID = id
	}
	return t, nil
}

// Send posts the entries in digest order. A failed message does not stop the
// rest; all failures are returned together.
func (t *Telegram) Send(ctx context.Context, _ string, digest []model.DigestEntry) error {
	var errs error
	sent := 0
	for i, e := range digest {
		if i > 0 {
			select {
			case <-ctx.Done():
				return multierr.Append(errs, ctx.Err())
			case <-time.After(t.pace):
			}
		}

		if _, err := t.api.Send(t.message(FormatEntry(e))); err != nil {
			t.log.Error("send message", "source", e.Source.Key(), "id", e.ExternalID, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("send %s/%s: %w", e.Source.Key(), e.ExternalID, err))
			continue
		}
		sent++
	}

	if sent > 0 {
		t.log.Info("sent notifications", "count", sent)
	}
	return errs
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.DisableWebPagePreview = true
	return msg
}
