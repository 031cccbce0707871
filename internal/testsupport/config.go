package testsupport

import (
	"path/filepath"
	"testing"

	"likevault/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and placeholder credentials, so Validate passes without env vars.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Reddit.ClientID = "client"
	cfgVal.Reddit.ClientSecret = "secret"
	cfgVal.Reddit.Username = "archivist"
	cfgVal.Reddit.Password = "hunter2"
	cfgVal.Reddit.UserAgent = "likevault-test/0.1"
	cfgVal.Telegram.BotToken = "123:test"
	cfgVal.Telegram.ChannelID = -1001
	cfgVal.Telegram.AdminID = 42
	cfgVal.Telegram.SendPauseMS = 0
	cfgVal.Workflow.FetchOnStart = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDiskBudgetMB overrides the disk budget and per-file cap.
func WithDiskBudgetMB(budget, fileCap int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.MaxDiskUsageMB = budget
		b.cfg.Storage.MaxFileSizeMB = fileCap
	}
}

// WithRetry overrides retry policy knobs.
func WithRetry(maxRetries, alertAfter int, initialDelaySeconds float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxRetries = maxRetries
		b.cfg.Retry.AlertAfterRetry = alertAfter
		b.cfg.Retry.InitialDelaySeconds = initialDelaySeconds
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.WorkerCount = count
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
