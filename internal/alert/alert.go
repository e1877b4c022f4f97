// Package alert tells the operator when balance reconciliation needs attention:
// a resolver run that hit errors, or a resolver that has not run for too long.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
)

// maxMessageLen keeps messages under Telegram's 4096 character limit.
const maxMessageLen = 4000

// Notifier delivers an operator alert.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Nop drops every alert. Used when no alert channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// Log writes alerts to the application log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, subject, body string) error {
	l.Logger.Warn("operator alert", slog.String("subject", subject), slog.String("body", body))
	return nil
}

// Telegram sends alerts to a chat through the Bot API.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram creates a send-only bot. It never polls for updates.
func NewTelegram(token string, chatID int64, opts ...bot.Option) (*Telegram, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("alert: creating telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, subject, body string) error {
	msg := fmt.Sprintf("⚠️ %s\n\n%s\n\n%s", subject, body, time.Now().UTC().Format("2006-01-02 15:04:05 MST"))
	if r := []rune(msg); len(r) > maxMessageLen {
		msg = string(r[:maxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   msg,
	})
	if err != nil {
		return fmt.Errorf("alert: sending telegram message: %w", err)
	}
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}
