package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Reddit contains the content source credentials and listing options.
type Reddit struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	UserAgent      string `toml:"user_agent"`
	FetchLimit     int    `toml:"fetch_limit"`
	AuthURL        string `toml:"auth_url"`
	APIURL         string `toml:"api_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Telegram contains the destination channel and admin bot settings.
type Telegram struct {
	BotToken       string `toml:"bot_token"`
	ChannelID      int64  `toml:"channel_id"`
	AdminID        int64  `toml:"admin_id"`
	APIEndpoint    string `toml:"api_endpoint"`
	MediaGroupSize int    `toml:"media_group_size"`
	TextLimit      int    `toml:"text_limit"`
	SendPauseMS    int    `toml:"send_pause_ms"`
	RequestTimeout int    `toml:"request_timeout"`
	AdminCommands  bool   `toml:"admin_commands"`
}

// Storage contains the local disk budget.
type Storage struct {
	MaxDiskUsageMB int64 `toml:"max_disk_usage_mb"`
	MaxFileSizeMB  int64 `toml:"max_file_size_mb"`
	MinFreeSpaceMB int64 `toml:"min_free_space_mb"`
}

// Retry contains the backoff and alert escalation policy.
type Retry struct {
	MaxRetries          int     `toml:"max_retries"`
	AlertAfterRetry     int     `toml:"alert_after_retry"`
	InitialDelaySeconds float64 `toml:"initial_delay_seconds"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
}

// Workflow contains worker pool and scheduler timing.
type Workflow struct {
	WorkerCount            int    `toml:"worker_count"`
	DequeueTimeoutSeconds  int    `toml:"dequeue_timeout_seconds"`
	DeferPosition          int    `toml:"defer_position"`
	MaxDeferrals           int    `toml:"max_deferrals"`
	FetchSchedule          string `toml:"fetch_schedule"`
	FetchOnStart           bool   `toml:"fetch_on_start"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
	ShutdownGraceSeconds   int    `toml:"shutdown_grace_seconds"`
	ResumeOnStart          bool   `toml:"resume_on_start"`
}

// Notifications contains configuration for operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TelegramAdmin  bool   `toml:"telegram_admin"`
	QueueSize      int    `toml:"queue_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for likevault.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Reddit: content source credentials
//   - Telegram: destination channel, admin chat, pacing
//   - Storage: disk budget and per-file cap
//   - Retry: backoff and alert thresholds
//   - Workflow: workers, deferral, fetch schedule
//   - Notifications: ntfy and Telegram admin alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Reddit        Reddit        `toml:"reddit"`
	Telegram      Telegram      `toml:"telegram"`
	Storage       Storage       `toml:"storage"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("likevault.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DownloadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite state database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "likevault.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "likevault.sock")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "likevault.lock")
}

// DiskBudgetBytes returns the total local storage budget in bytes.
func (c *Config) DiskBudgetBytes() int64 {
	return c.Storage.MaxDiskUsageMB * mebibyte
}

// FileCapBytes returns the hard per-file cap in bytes.
func (c *Config) FileCapBytes() int64 {
	return c.Storage.MaxFileSizeMB * mebibyte
}

// MinFreeSpaceBytes returns the filesystem headroom kept free on the download volume.
func (c *Config) MinFreeSpaceBytes() int64 {
	return c.Storage.MinFreeSpaceMB * mebibyte
}

// RetryInitialDelay returns the first backoff delay.
func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelaySeconds * float64(time.Second))
}

// SendPause returns the pause enforced between consecutive Telegram sends.
func (c *Config) SendPause() time.Duration {
	return time.Duration(c.Telegram.SendPauseMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
