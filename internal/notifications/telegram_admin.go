package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"likevault/internal/telegram"
)

// NewTelegramAdmin sends notifications as HTML messages to the admin chat.
func NewTelegramAdmin(bot telegram.Bot, adminID int64) Service {
	return &telegramAdmin{bot: bot, chatID: adminID}
}

type telegramAdmin struct {
	bot    telegram.Bot
	chatID int64
}

func (t *telegramAdmin) Send(_ context.Context, n Notification) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatHTML(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram admin alert: %w", err)
	}
	return nil
}

// FormatHTML renders n as Telegram HTML with an escaped bold title.
func FormatHTML(n Notification) string {
	var b strings.Builder
	b.WriteString("🚨 ")
	if title := strings.TrimSpace(n.Title); title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(title))
		b.WriteString("</b>\n")
	}
	b.WriteString(html.EscapeString(telegram.Truncate(strings.TrimSpace(n.Message), telegram.MaxTextLength-256)))
	return b.String()
}
