package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"likevault/internal/config"
	"likevault/internal/fetch"
	"likevault/internal/logging"
	"likevault/internal/quota"
	"likevault/internal/retry"
	"likevault/internal/store"
	"likevault/internal/telegram"
)

// Admitter gates downloads against the disk budget.
type Admitter interface {
	Admit(ctx context.Context, candidate int64) (*quota.Reservation, quota.Decision, error)
	CheckActual(ctx context.Context, size int64, reservation *quota.Reservation) error
}

// Downloader stores one remote file locally.
type Downloader interface {
	Download(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Delivery publishes to the destination channel.
type Delivery interface {
	SendMedia(ctx context.Context, batch telegram.Batch) ([]telegram.Receipt, error)
	SendText(ctx context.Context, text string) (int, error)
	ChatID() int64
}

// Alerter receives operator alerts. Implementations must not block.
type Alerter interface {
	Alert(ctx context.Context, title, message string)
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Guard      Admitter
	Downloader Downloader
	Delivery   Delivery
	Alerts     Alerter
}

// Manager owns the task queue and the worker pool.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	queue  *Queue
	deps   Dependencies
	logger *slog.Logger

	policy         retry.Policy
	sleep          retry.Sleeper
	workers        int
	dequeueTimeout time.Duration
	deferOffset    int
	maxDeferrals   int
	grace          time.Duration

	mu          sync.RWMutex
	running     bool
	stopLoops   context.CancelFunc
	cancelTasks context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	startedAt   time.Time

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithSleeper replaces the retry backoff wait, mainly for tests.
func WithSleeper(sleep retry.Sleeper) ManagerOption {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithPolicy overrides the retry policy derived from configuration.
func WithPolicy(policy retry.Policy) ManagerOption {
	return func(m *Manager) { m.policy = policy }
}

// WithQueue shares an existing queue.
func WithQueue(queue *Queue) ManagerOption {
	return func(m *Manager) {
		if queue != nil {
			m.queue = queue
		}
	}
}

// NewManager constructs a workflow manager. Missing alerting falls back to
// discarding alerts.
func NewManager(cfg *config.Config, st *store.Store, deps Dependencies, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if deps.Alerts == nil {
		deps.Alerts = discardAlerts{}
	}
	m := &Manager{
		cfg:            cfg,
		store:          st,
		queue:          NewQueue(),
		deps:           deps,
		logger:         logging.NewComponentLogger(logger, "workflow"),
		policy:         retry.PolicyFromConfig(cfg),
		sleep:          retry.TimerSleep,
		workers:        cfg.Workflow.WorkerCount,
		dequeueTimeout: time.Duration(cfg.Workflow.DequeueTimeoutSeconds) * time.Second,
		deferOffset:    cfg.Workflow.DeferPosition,
		maxDeferrals:   cfg.Workflow.MaxDeferrals,
		grace:          time.Duration(cfg.Workflow.ShutdownGraceSeconds) * time.Second,
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.dequeueTimeout <= 0 {
		m.dequeueTimeout = time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Queue exposes the task queue.
func (m *Manager) Queue() *Queue {
	return m.queue
}

// Enqueue appends tasks to the queue.
func (m *Manager) Enqueue(tasks ...Task) {
	m.queue.Enqueue(tasks...)
}

type discardAlerts struct{}

func (discardAlerts) Alert(context.Context, string, string) {}
