package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"likevault/internal/config"
	"likevault/internal/telegram"
)

const userAgent = "likevault/0.1.0"

// Priority expresses urgency to sinks that support it.
type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
)

// Notification is one alert.
type Notification struct {
	Title    string
	Message  string
	Tags     []string
	Priority Priority
}

// Service sends notifications synchronously.
type Service interface {
	Send(ctx context.Context, n Notification) error
}

// NewService builds the configured services: ntfy when a topic is set and the
// Telegram admin chat when enabled with an admin id and a bot. With neither,
// a noop implementation is returned.
func NewService(cfg *config.Config, bot telegram.Bot) Service {
	if cfg == nil {
		return noopService{}
	}
	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		services = append(services, NewNtfy(topic, timeout))
	}
	if cfg.Notifications.TelegramAdmin && cfg.Telegram.AdminID != 0 && bot != nil {
		services = append(services, NewTelegramAdmin(bot, cfg.Telegram.AdminID))
	}
	return Multi(services...)
}

// NewNtfy posts notifications to an ntfy topic URL.
func NewNtfy(endpoint string, timeout time.Duration) Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Send(ctx context.Context, data Notification) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.Message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.Title != "" {
		req.Header.Set("Title", data.Title)
	}
	if len(data.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.Tags, ","))
	}
	if data.Priority != "" && data.Priority != PriorityDefault {
		req.Header.Set("Priority", string(data.Priority))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Multi fans a notification out to every service and joins their errors.
func Multi(services ...Service) Service {
	filtered := make(multiService, 0, len(services))
	for _, svc := range services {
		if svc != nil {
			filtered = append(filtered, svc)
		}
	}
	switch len(filtered) {
	case 0:
		return noopService{}
	case 1:
		return filtered[0]
	default:
		return filtered
	}
}

type multiService []Service

func (m multiService) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Send(context.Context, Notification) error { return nil }

// IsNoop reports whether svc discards every notification.
func IsNoop(svc Service) bool {
	_, ok := svc.(noopService)
	return ok || svc == nil
}
