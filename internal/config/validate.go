package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateReddit(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"notifications.queue_size":      c.Notifications.QueueSize,
	})
}

func (c *Config) validateReddit() error {
	missing := make([]string, 0, 4)
	for key, value := range map[string]string{
		"reddit.client_id":     c.Reddit.ClientID,
		"reddit.client_secret": c.Reddit.ClientSecret,
		"reddit.username":      c.Reddit.Username,
		"reddit.password":      c.Reddit.Password,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s required. Set the REDDIT_* env vars or edit %s (create with 'likevault config init')",
			strings.Join(missing, ", "), c.configHint())
	}
	return ensurePositiveMap(map[string]int{
		"reddit.fetch_limit":     c.Reddit.FetchLimit,
		"reddit.request_timeout": c.Reddit.RequestTimeout,
	})
}

func (c *Config) validateTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required. Set TELEGRAM_BOT_TOKEN or edit %s", c.configHint())
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id must be set")
	}
	if !strings.Contains(c.Telegram.APIEndpoint, "%s") {
		return errors.New("telegram.api_endpoint must contain %s placeholders for token and method")
	}
	if c.Telegram.MediaGroupSize < 2 || c.Telegram.MediaGroupSize > 10 {
		return errors.New("telegram.media_group_size must be between 2 and 10")
	}
	if c.Telegram.SendPauseMS < 0 {
		return errors.New("telegram.send_pause_ms must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"telegram.text_limit":      c.Telegram.TextLimit,
		"telegram.request_timeout": c.Telegram.RequestTimeout,
	})
}

func (c *Config) validateStorage() error {
	if c.Storage.MaxDiskUsageMB <= 0 {
		return errors.New("storage.max_disk_usage_mb must be positive")
	}
	if c.Storage.MaxFileSizeMB <= 0 {
		return errors.New("storage.max_file_size_mb must be positive")
	}
	if c.Storage.MaxFileSizeMB > c.Storage.MaxDiskUsageMB {
		return errors.New("storage.max_file_size_mb must not exceed storage.max_disk_usage_mb")
	}
	if c.Storage.MinFreeSpaceMB < 0 {
		return errors.New("storage.min_free_space_mb must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries <= 0 {
		return errors.New("retry.max_retries must be positive")
	}
	if c.Retry.AlertAfterRetry <= 0 || c.Retry.AlertAfterRetry > c.Retry.MaxRetries {
		return errors.New("retry.alert_after_retry must be between 1 and retry.max_retries")
	}
	if c.Retry.InitialDelaySeconds < 0 {
		return errors.New("retry.initial_delay_seconds must not be negative")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return errors.New("retry.backoff_multiplier must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":             c.Workflow.WorkerCount,
		"workflow.dequeue_timeout_seconds":  c.Workflow.DequeueTimeoutSeconds,
		"workflow.download_timeout_seconds": c.Workflow.DownloadTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.DeferPosition < 0 {
		return errors.New("workflow.defer_position must not be negative")
	}
	if c.Workflow.MaxDeferrals < 0 {
		return errors.New("workflow.max_deferrals must not be negative")
	}
	if c.Workflow.ShutdownGraceSeconds < 0 {
		return errors.New("workflow.shutdown_grace_seconds must not be negative")
	}
	if _, err := cron.ParseStandard(c.Workflow.FetchSchedule); err != nil {
		return fmt.Errorf("workflow.fetch_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
