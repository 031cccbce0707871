package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"likevault/internal/config"
	"likevault/internal/daemon"
	"likevault/internal/fetch"
	"likevault/internal/ingest"
	"likevault/internal/ipc"
	"likevault/internal/logging"
	"likevault/internal/quota"
	"likevault/internal/reddit"
	"likevault/internal/store"
	"likevault/internal/telegram"
	"likevault/internal/testsupport"
	"likevault/internal/workflow"
)

type nopDownloader struct{}

func (nopDownloader) Download(context.Context, fetch.Request) (fetch.Result, error) {
	return fetch.Result{}, errors.New("not used")
}

type textDelivery struct{}

func (textDelivery) SendMedia(context.Context, telegram.Batch) ([]telegram.Receipt, error) {
	return nil, errors.New("not used")
}
func (textDelivery) SendText(context.Context, string) (int, error) { return 7, nil }
func (textDelivery) ChatID() int64                                 { return -1001 }

type staticSource struct{ posts []reddit.Post }

func (s staticSource) Upvoted(context.Context, int) ([]reddit.Post, error) { return s.posts, nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T, posts ...reddit.Post) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Paths.APIBind = ""
	cfg.Storage.MinFreeSpaceMB = 0

	configPath := filepath.Join(homeDir, ".config", "likevault", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	guard, err := quota.New(st, quota.Limits{Budget: cfg.DiskBudgetBytes(), FileCap: cfg.FileCapBytes()})
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	mgr := workflow.NewManager(cfg, st, workflow.Dependencies{Guard: guard, Downloader: nopDownloader{}, Delivery: textDelivery{}}, logger)
	sched, err := ingest.New(cfg, st, staticSource{posts: posts}, mgr, nil, logger)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Dependencies{Store: st, Workflow: mgr, Ingest: sched, Usage: guard}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Unix socket paths are length limited, so keep this one short.
	sockDir, err := os.MkdirTemp("", "lvcli")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	socketPath := filepath.Join(sockDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		os.RemoveAll(sockDir)
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
		os.RemoveAll(sockDir)
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
download_dir = %q
log_dir = %q
api_bind = %q

[reddit]
client_id = %q
client_secret = %q
username = %q
password = %q

[telegram]
bot_token = %q
channel_id = %d
admin_id = %d

[storage]
min_free_space_mb = %d
`,
		cfg.Paths.DataDir,
		cfg.Paths.DownloadDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Reddit.ClientID,
		cfg.Reddit.ClientSecret,
		cfg.Reddit.Username,
		cfg.Reddit.Password,
		cfg.Telegram.BotToken,
		cfg.Telegram.ChannelID,
		cfg.Telegram.AdminID,
		cfg.Storage.MinFreeSpaceMB,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
