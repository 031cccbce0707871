package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"likevault/internal/adminbot"
	"likevault/internal/config"
	"likevault/internal/ingest"
	"likevault/internal/logging"
	"likevault/internal/notifications"
	"likevault/internal/quota"
	"likevault/internal/store"
	"likevault/internal/telegram"
	"likevault/internal/workflow"
)

// UsageReporter reports disk usage against the budget.
type UsageReporter interface {
	Usage(ctx context.Context) (quota.Usage, error)
}

// Dependencies are the services the daemon drives.
type Dependencies struct {
	Store    *store.Store
	Workflow *workflow.Manager
	Ingest   *ingest.Scheduler
	Usage    UsageReporter
	// Alerts is drained on Close. Notifier backs TestNotification.
	Alerts   *notifications.Sink
	Notifier notifications.Service
	// AdminAPI enables the admin command listener when set.
	AdminAPI telegram.Bot
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies
	admin  *adminbot.Bot
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
	resumed   bool
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool                     `json:"running"`
	PID           int                      `json:"pid"`
	StartedAt     time.Time                `json:"started_at,omitempty"`
	Workflow      workflow.StatusSummary   `json:"workflow"`
	Disk          quota.Usage              `json:"disk"`
	Items         map[store.ItemStatus]int `json:"items"`
	LastPass      *ingest.PassResult       `json:"last_pass,omitempty"`
	NextFetch     time.Time                `json:"next_fetch,omitempty"`
	AlertsSent    int64                    `json:"alerts_sent"`
	AlertsDropped int64                    `json:"alerts_dropped"`
	DatabasePath  string                   `json:"database_path"`
	LockFilePath  string                   `json:"lock_path"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Workflow == nil || deps.Ingest == nil {
		return nil, errors.New("daemon requires config, store, workflow manager and ingest scheduler")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if deps.AdminAPI != nil && cfg.Telegram.AdminCommands && cfg.Telegram.AdminID != 0 {
		admin, err := adminbot.New(deps.AdminAPI, cfg.Telegram.AdminID, d, logger)
		if err != nil {
			return nil, fmt.Errorf("admin bot: %w", err)
		}
		d.admin = admin
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, re-queues unfinished items on the first
// start, and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another likevault daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if !d.resumed && d.cfg.Workflow.ResumeOnStart {
		if _, err := d.deps.Ingest.Resume(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "resume failed", "resume_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "unfinished items wait for the next restart"),
				logging.String(logging.FieldErrorHint, "check the state database"),
			)
		}
	}
	d.resumed = true

	rollback := func(cause error) error {
		d.stopServices()
		cancel()
		_ = d.lock.Unlock()
		return cause
	}
	if err := d.deps.Workflow.Start(runCtx); err != nil {
		return rollback(fmt.Errorf("start workflow: %w", err))
	}
	if err := d.deps.Ingest.Start(runCtx); err != nil {
		return rollback(fmt.Errorf("start ingest: %w", err))
	}
	if d.admin != nil {
		if err := d.admin.Start(runCtx); err != nil {
			return rollback(fmt.Errorf("start admin bot: %w", err))
		}
	}
	if err := d.api.start(runCtx); err != nil {
		return rollback(err)
	}

	d.cancel = cancel
	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("likevault daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("admin_commands", d.admin != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.stopServices()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("likevault daemon stopped")
}

// stopServices stops intake first so nothing new is queued while the
// worker pool drains.
func (d *Daemon) stopServices() {
	d.api.stop()
	if d.admin != nil {
		d.admin.Stop()
	}
	d.deps.Ingest.Stop()
	d.deps.Workflow.Stop()
}

// Close stops the daemon, drains pending alerts and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.Alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.deps.Alerts.Close(ctx); err != nil {
			d.logger.Debug("alert drain incomplete", logging.Error(err))
		}
	}
	return d.deps.Store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.deps.Workflow.Status(),
		LastPass:     d.deps.Ingest.LastPass(),
		NextFetch:    d.deps.Ingest.NextRun(),
		DatabasePath: d.deps.Store.Path(),
		LockFilePath: d.lockPath,
	}
	if status.Running {
		status.StartedAt = time.Unix(0, d.startedAt.Load())
	}
	if d.deps.Alerts != nil {
		status.AlertsSent = d.deps.Alerts.Sent()
		status.AlertsDropped = d.deps.Alerts.Dropped()
	}

	items, err := d.deps.Store.CountItemsByStatus(ctx)
	if err != nil {
		return status, err
	}
	status.Items = items
	if d.deps.Usage != nil {
		usage, err := d.deps.Usage.Usage(ctx)
		if err != nil {
			return status, err
		}
		status.Disk = usage
	} else {
		used, err := d.deps.Store.DiskUsage(ctx)
		if err != nil {
			return status, err
		}
		status.Disk = quota.Usage{Used: used, Budget: d.cfg.DiskBudgetBytes(), FileCap: d.cfg.FileCapBytes()}
	}
	return status, nil
}

// Stats aggregates statistics for period.
func (d *Daemon) Stats(ctx context.Context, period store.Period) (store.Stats, error) {
	return d.deps.Store.Stats(ctx, period)
}

// Summary condenses Status for the admin bot.
func (d *Daemon) Summary(ctx context.Context) (adminbot.Summary, error) {
	status, err := d.Status(ctx)
	if err != nil {
		return adminbot.Summary{}, err
	}
	summary := adminbot.Summary{
		Running:     status.Running,
		DiskUsage:   status.Disk.Used,
		DiskBudget:  status.Disk.Budget,
		QueueLength: status.Workflow.QueueLength,
		Workers:     status.Workflow.Workers,
		Active:      int(status.Workflow.Active),
		NextFetch:   status.NextFetch,
	}
	if status.LastPass != nil {
		summary.LastFetch = status.LastPass.StartedAt
	}
	return summary, nil
}

// FetchNow runs an ingestion pass immediately and waits for it.
func (d *Daemon) FetchNow(ctx context.Context) (ingest.PassResult, error) {
	if !d.running.Load() {
		return ingest.PassResult{}, errors.New("daemon is not running")
	}
	return d.deps.Ingest.RunOnce(ctx)
}

// TestNotification sends a test alert through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.deps.Notifier == nil || notifications.IsNoop(d.deps.Notifier) {
		return false, "no notification channel configured", nil
	}
	err := d.deps.Notifier.Send(ctx, notifications.Notification{
		Title:   "likevault test",
		Message: "Test notification from likevault",
		Tags:    []string{"test_tube"},
	})
	if err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LockPath returns the daemon lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Items lists archived items, optionally filtered by status.
func (d *Daemon) Items(ctx context.Context, statuses ...store.ItemStatus) ([]*store.Item, error) {
	return d.deps.Store.ListItemsByStatus(ctx, statuses...)
}
