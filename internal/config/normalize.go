package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeReddit()
	c.normalizeTelegram()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeReddit() {
	c.Reddit.ClientID = envFallback(c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	c.Reddit.ClientSecret = envFallback(c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	c.Reddit.Username = envFallback(c.Reddit.Username, "REDDIT_USERNAME")
	c.Reddit.Password = envFallback(c.Reddit.Password, "REDDIT_PASSWORD")
	c.Reddit.UserAgent = strings.TrimSpace(c.Reddit.UserAgent)
	if c.Reddit.UserAgent == "" {
		owner := c.Reddit.Username
		if owner == "" {
			owner = "unknown"
		}
		c.Reddit.UserAgent = fmt.Sprintf("likevault/0.1 (by /u/%s)", owner)
	}
	c.Reddit.AuthURL = strings.TrimRight(strings.TrimSpace(c.Reddit.AuthURL), "/")
	if c.Reddit.AuthURL == "" {
		c.Reddit.AuthURL = defaultRedditAuthURL
	}
	c.Reddit.APIURL = strings.TrimRight(strings.TrimSpace(c.Reddit.APIURL), "/")
	if c.Reddit.APIURL == "" {
		c.Reddit.APIURL = defaultRedditAPIURL
	}
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = envFallback(c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	c.Telegram.APIEndpoint = strings.TrimSpace(c.Telegram.APIEndpoint)
	if c.Telegram.APIEndpoint == "" {
		c.Telegram.APIEndpoint = defaultTelegramEndpoint
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.FetchSchedule = strings.TrimSpace(c.Workflow.FetchSchedule)
	if c.Workflow.FetchSchedule == "" {
		c.Workflow.FetchSchedule = defaultFetchSchedule
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}
