package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"likevault/internal/config"
	"likevault/internal/services"
)

// Bot is the subset of *tgbotapi.BotAPI used by likevault.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ Bot = (*tgbotapi.BotAPI)(nil)

// NewBot connects to the Bot API with the configured token and endpoint. It
// performs a getMe call, so it fails fast on a bad token.
func NewBot(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	if cfg == nil {
		return nil, errors.New("telegram: config is required")
	}
	token := strings.TrimSpace(cfg.Telegram.BotToken)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "telegram", "connect", "bot token is required", nil)
	}
	timeout := time.Duration(cfg.Telegram.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	endpoint := cfg.Telegram.APIEndpoint
	if strings.TrimSpace(endpoint) == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, classify("connect", err)
	}
	return bot, nil
}

// classify maps Bot API failures onto services markers. Rejected requests
// (400) are permanent and authorization failures point at configuration.
// Everything else is transient, and a 429 carries the server's retry_after.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusBadRequest:
			return services.Wrap(services.ErrValidation, "telegram", operation, apiErr.Message, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "telegram", operation, apiErr.Message, err)
		case apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0:
			return services.WithRetryAfter(services.Wrap(services.ErrTransient, "telegram", operation,
				fmt.Sprintf("rate limited, retry after %ds", apiErr.RetryAfter), err),
				time.Duration(apiErr.RetryAfter)*time.Second)
		}
	}
	return services.Wrap(services.ErrTransient, "telegram", operation, "request failed", err)
}
