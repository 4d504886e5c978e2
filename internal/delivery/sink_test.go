package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/wneessen/go-mail"
	"go.uber.org/multierr"

	"news_digest/internal/config"
	"news_digest/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.now = func() time.Time { return generated }

	if err := c.Send(context.Background(), "ignored", nil); err != nil {
		t.Fatalf("send empty: %v", err)
	}
	if diff := cmp.Diff("", buf.String()); diff != "" {
		t.Errorf("empty digest wrote output (-want +got):\n%s", diff)
	}

	if err := c.Send(context.Background(), "ignored", sampleDigest()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if diff := cmp.Diff(FormatText(sampleDigest(), generated), buf.String()); diff != "" {
		t.Errorf("console output mismatch (-want +got):\n%s", diff)
	}
}

type mockAPI struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	failOn   int
	calls    int
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls == m.failOn {
		return tgbotapi.Message{}, errors.New("Bad Request: chat not found")
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.messages = append(m.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramChatID(t *testing.T) {
	tests := []struct {
		name        string
		chat        string
		wantChatID  int64
		wantChannel string
		wantErr     bool
	}{
		{name: "numeric", chat: "12345", wantChatID: 12345},
		{name: "negative group id", chat: "-1001234567890", wantChatID: -1001234567890},
		{name: "channel", chat: "@news", wantChannel: "@news"},
		{name: "bare at", chat: "@", wantErr: true},
		{name: "garbage", chat: "news", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := newTelegram(&mockAPI{}, tt.chat, discardLogger())
			if tt.wantErr {
				var cfgErr *model.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *model.ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantChatID, tg.chatID); diff != "" {
				t.Errorf("chatID mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantChannel, tg.channel); diff != "" {
				t.Errorf("channel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTelegramSend(t *testing.T) {
	api := &mockAPI{}
	tg, err := newTelegram(api, "@news", discardLogger())
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	tg.pace = 0

	if err := tg.Send(context.Background(), "", nil); err != nil {
		t.Fatalf("send empty: %v", err)
	}
	if diff := cmp.Diff(0, api.calls); diff != "" {
		t.Errorf("empty digest made calls (-want +got):\n%s", diff)
	}

	digest := sampleDigest()
	if err := tg.Send(context.Background(), "", digest); err != nil {
		t.Fatalf("send: %v", err)
	}

	var texts []string
	for _, m := range api.messages {
		if diff := cmp.Diff("@news", m.ChannelUsername); diff != "" {
			t.Errorf("channel mismatch (-want +got):\n%s", diff)
		}
		if !m.DisableWebPagePreview {
			t.Error("expected web page preview disabled")
		}
		texts = append(texts, m.Text)
	}
	want := []string{FormatEntry(digest[0]), FormatEntry(digest[1])}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestTelegramSendContinuesAfterFailure(t *testing.T) {
	api := &mockAPI{failOn: 1}
	tg, err := newTelegram(api, "42", discardLogger())
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	tg.pace = 0

	err = tg.Send(context.Background(), "", sampleDigest())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if diff := cmp.Diff(1, len(multierr.Errors(err))); diff != "" {
		t.Errorf("error count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(api.messages)); diff != "" {
		t.Fatalf("delivered count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(42), api.messages[0].ChatID); diff != "" {
		t.Errorf("chat id mismatch (-want +got):\n%s", diff)
	}
}

func TestTelegramSendStopsOnCancel(t *testing.T) {
	api := &mockAPI{}
	tg, err := newTelegram(api, "42", discardLogger())
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	tg.pace = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tg.Send(ctx, "", sampleDigest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff(1, len(api.messages)); diff != "" {
		t.Errorf("delivered count mismatch (-want +got):\n%s", diff)
	}
}

type mockMailer struct {
	sent []*mail.Msg
	err  error
}

func (m *mockMailer) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, messages...)
	return nil
}

func TestEmailSend(t *testing.T) {
	mailer := &mockMailer{}
	e := newEmail(mailer, "digest@example.com", "me@example.com, you@example.com", discardLogger())
	e.now = func() time.Time { return generated }

	if err := e.Send(context.Background(), "News digest", nil); err != nil {
		t.Fatalf("send empty: %v", err)
	}
	if diff := cmp.Diff(0, len(mailer.sent)); diff != "" {
		t.Errorf("empty digest sent mail (-want +got):\n%s", diff)
	}

	if err := e.Send(context.Background(), "News digest", sampleDigest()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if diff := cmp.Diff(1, len(mailer.sent)); diff != "" {
		t.Fatalf("sent count mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if _, err := mailer.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("render message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"Subject: News digest",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"GraphQL at scale",
		"you@example.com",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestEmailSendFailure(t *testing.T) {
	e := newEmail(&mockMailer{err: errors.New("dial tcp: connection refused")}, "digest@example.com", "me@example.com", discardLogger())
	if err := e.Send(context.Background(), "News digest", sampleDigest()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestEmailInvalidAddress(t *testing.T) {
	e := newEmail(&mockMailer{}, "not an address", "me@example.com", discardLogger())
	if err := e.Send(context.Background(), "News digest", sampleDigest()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNewSelectsConsole(t *testing.T) {
	sink, err := New(&config.Config{}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(*Console); !ok {
		t.Errorf("expected *Console, got %T", sink)
	}
}

func TestNewSelectsEmail(t *testing.T) {
	cfg := &config.Config{
		SMTP:     &config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "a@b.c", To: "d@e.f"},
		Telegram: &config.TelegramConfig{Token: "t", ChatID: "1"},
	}
	sink, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(*Email); !ok {
		t.Errorf("expected *Email, got %T", sink)
	}
}
