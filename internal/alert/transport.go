// Package alert implements the quality-gated alerting pipeline: the
// persistent rate limit, the in-memory per-(marketId,type)
// deduplication window, the per-minute throttle, structured message
// formatting, and a swappable chat transport.
package alert

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport sends a formatted alert message to a chat destination. The
// dispatcher depends only on this interface; the concrete vendor is
// swappable.
type Transport interface {
	Send(ctx context.Context, text string) error
}

// TelegramTransport sends HTML-formatted messages to one chat via the
// Telegram Bot API.
type TelegramTransport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramTransport constructs a transport bound to botToken and
// chatID. An empty token or chatID yields a transport whose Send is a
// no-op, so alerting is active only when both are configured.
func NewTelegramTransport(botToken, chatID string) (*TelegramTransport, error) {
	t := &TelegramTransport{}
	if botToken == "" || chatID == "" {
		return t, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	t.chatID = parseChatID(chatID)
	return t, nil
}

func parseChatID(s string) int64 {
	var id int64
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	if neg {
		id = -id
	}
	return id
}

// Send posts text to the configured chat. A zero-value transport (no
// token/chat configured) silently succeeds.
func (t *TelegramTransport) Send(ctx context.Context, text string) error {
	if t.bot == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(msg)
	return err
}
