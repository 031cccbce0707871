// Package daemonrun wires every likevault service into one process and runs
// it until SIGINT or SIGTERM.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"likevault/internal/config"
	"likevault/internal/daemon"
	"likevault/internal/fetch"
	"likevault/internal/ingest"
	"likevault/internal/ipc"
	"likevault/internal/logging"
	"likevault/internal/notifications"
	"likevault/internal/preflight"
	"likevault/internal/quota"
	"likevault/internal/reddit"
	"likevault/internal/store"
	"likevault/internal/telegram"
	"likevault/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the likevault daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logPreflight(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "likevault.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open state store", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions or move an incompatible database aside"),
		)
		return err
	}

	d, ipcServer, err := build(signalCtx, cfg, st, logger)
	if err != nil {
		st.Close()
		return err
	}
	defer d.Close()
	defer ipcServer.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and whether another instance holds "+cfg.LockPath()),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("likevault daemon shutting down",
		logging.Duration("grace", time.Duration(cfg.Workflow.ShutdownGraceSeconds)*time.Second),
	)
	return nil
}

// build assembles the service graph around an open store.
func build(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, *ipc.Server, error) {
	bot, err := telegram.NewBot(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect telegram: %w", err)
	}
	channel, err := telegram.NewChannel(bot, cfg.Telegram.ChannelID,
		telegram.WithGroupSize(cfg.Telegram.MediaGroupSize),
		telegram.WithTextLimit(cfg.Telegram.TextLimit),
		telegram.WithSendPause(cfg.SendPause()),
		telegram.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	notifier := notifications.NewService(cfg, bot)
	sink := notifications.NewSink(notifier, cfg.Notifications.QueueSize, logger)

	guard, err := quota.New(st, quota.Limits{
		Budget:       cfg.DiskBudgetBytes(),
		FileCap:      cfg.FileCapBytes(),
		MinFreeSpace: cfg.MinFreeSpaceBytes(),
		Dir:          cfg.Paths.DownloadDir,
	}, quota.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	downloader := fetch.New(
		fetch.WithTimeout(time.Duration(cfg.Workflow.DownloadTimeoutSeconds)*time.Second),
		fetch.WithLogger(logger),
	)
	manager := workflow.NewManager(cfg, st, workflow.Dependencies{
		Guard:      guard,
		Downloader: downloader,
		Delivery:   channel,
		Alerts:     sink,
	}, logger)

	source, err := reddit.New(cfg, reddit.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	scheduler, err := ingest.New(cfg, st, source, manager, sink, logger)
	if err != nil {
		return nil, nil, err
	}

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:    st,
		Workflow: manager,
		Ingest:   scheduler,
		Usage:    guard,
		Alerts:   sink,
		Notifier: notifier,
		AdminAPI: bot,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()
	return d, ipcServer, nil
}

func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunLocal(cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "downloads may fail or be deferred"),
			logging.String(logging.FieldErrorHint, "fix the path or free disk space, then restart"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
