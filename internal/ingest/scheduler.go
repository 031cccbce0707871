package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"likevault/internal/config"
	"likevault/internal/logging"
	"likevault/internal/reddit"
	"likevault/internal/services"
	"likevault/internal/store"
	"likevault/internal/workflow"
)

// Source lists candidate posts. It must be safe to call repeatedly.
type Source interface {
	Upvoted(ctx context.Context, limit int) ([]reddit.Post, error)
}

// Pipeline accepts queued work.
type Pipeline interface {
	Enqueue(tasks ...workflow.Task)
	Reconcile(ctx context.Context, itemID string) error
}

// Alerter receives operator alerts.
type Alerter interface {
	Alert(ctx context.Context, title, message string)
}

// PassResult summarizes one ingestion pass.
type PassResult struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Fetched   int           `json:"fetched"`
	New       int           `json:"new"`
	Seen      int           `json:"seen"`
	Deleted   int           `json:"deleted"`
	Enqueued  int           `json:"enqueued"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler runs ingestion passes.
type Scheduler struct {
	cfg      *config.Config
	store    *store.Store
	source   Source
	pipeline Pipeline
	alerts   Alerter
	logger   *slog.Logger
	schedule cron.Schedule

	passMu sync.Mutex

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	lastPass *PassResult
	nextRun  time.Time
}

// New validates the fetch schedule and builds a scheduler.
func New(cfg *config.Config, st *store.Store, source Source, pipeline Pipeline, alerts Alerter, logger *slog.Logger) (*Scheduler, error) {
	if cfg == nil || st == nil || source == nil || pipeline == nil {
		return nil, errors.New("ingest: config, store, source and pipeline are required")
	}
	schedule, err := cron.ParseStandard(cfg.Workflow.FetchSchedule)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "parse schedule", cfg.Workflow.FetchSchedule, err)
	}
	if alerts == nil {
		alerts = discardAlerts{}
	}
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		source:   source,
		pipeline: pipeline,
		alerts:   alerts,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		schedule: schedule,
	}, nil
}

// Start registers the periodic pass and, when configured, runs one
// immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("ingest scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id := c.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(runCtx)
	}))
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.nextRun = c.Entry(id).Next

	s.logger.Info("ingest scheduler started",
		logging.String("schedule", s.cfg.Workflow.FetchSchedule),
		logging.Bool("fetch_on_start", s.cfg.Workflow.FetchOnStart),
	)
	if s.cfg.Workflow.FetchOnStart {
		go func() { _, _ = s.RunOnce(runCtx) }()
	}
	return nil
}

// Stop cancels the schedule and waits for a running pass to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	// A fetch-on-start pass runs outside cron; wait for it too.
	s.passMu.Lock()
	s.passMu.Unlock()
	s.logger.Info("ingest scheduler stopped")
}

// LastPass returns the most recent pass summary, if any.
func (s *Scheduler) LastPass() *PassResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPass == nil {
		return nil
	}
	copy := *s.lastPass
	return &copy
}

// NextRun returns the next scheduled pass time, zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	if entries := s.cron.Entries(); len(entries) > 0 {
		return entries[0].Next
	}
	return s.nextRun
}

// RunOnce performs one ingestion pass. Concurrent calls are serialized.
func (s *Scheduler) RunOnce(ctx context.Context) (PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	result := PassResult{ID: uuid.NewString(), StartedAt: time.Now()}
	ctx = services.WithRequestID(ctx, result.ID)
	logger := logging.WithContext(ctx, s.logger)

	err := s.pass(ctx, logger, &result)
	result.Duration = time.Since(result.StartedAt)
	if err != nil {
		result.Error = err.Error()
	}
	s.mu.Lock()
	last := result
	s.lastPass = &last
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, err
		}
		logging.ErrorWithContext(logger, "ingest pass failed", "ingest_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check reddit credentials and connectivity; the next pass retries"),
		)
		s.alerts.Alert(ctx, "Reddit fetch failed", fmt.Sprintf("Fetching upvoted posts failed: %s", services.Truncate(err, 100)))
		return result, err
	}
	logger.Info("ingest pass complete",
		logging.Int("fetched", result.Fetched),
		logging.Int("new", result.New),
		logging.Int("seen", result.Seen),
		logging.Int("deleted", result.Deleted),
		logging.Int("enqueued", result.Enqueued),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Scheduler) pass(ctx context.Context, logger *slog.Logger, result *PassResult) error {
	posts, err := s.source.Upvoted(ctx, s.cfg.Reddit.FetchLimit)
	if err != nil {
		return err
	}
	result.Fetched = len(posts)

	var tasks []workflow.Task
	var failures []error
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		postTasks, created, err := s.admit(ctx, post)
		if err != nil {
			failures = append(failures, fmt.Errorf("post %s: %w", post.ID, err))
			continue
		}
		if !created {
			result.Seen++
			continue
		}
		result.New++
		if post.Removed {
			result.Deleted++
			logger.Info("post removed upstream, skipped", logging.String(logging.FieldItemID, post.ID))
			continue
		}
		tasks = append(tasks, postTasks...)
	}

	s.pipeline.Enqueue(tasks...)
	result.Enqueued = len(tasks)

	if err := s.store.RecordStats(ctx, store.StatsDelta{
		TasksEnqueued: int64(result.Enqueued),
		PostsSeen:     int64(result.Seen),
		PostsSkipped:  int64(result.Deleted),
	}); err != nil {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// admit records a post and returns the tasks it needs. created is false when
// the post was already known.
func (s *Scheduler) admit(ctx context.Context, post reddit.Post) ([]workflow.Task, bool, error) {
	exists, err := s.store.ItemExists(ctx, post.ID)
	if err != nil || exists {
		return nil, false, err
	}
	attachments := make([]store.NewAttachment, 0, len(post.Media))
	for i, media := range post.Media {
		attachments = append(attachments, store.NewAttachment{
			ItemID:       post.ID,
			Position:     i,
			URL:          media.URL,
			Kind:         media.Kind,
			Caption:      media.Caption,
			DeclaredSize: media.Size,
		})
	}
	created, stored, err := s.store.IngestItem(ctx, store.NewItem{
		ID:        post.ID,
		Author:    post.Author,
		Title:     post.Title,
		Body:      post.Body,
		URL:       post.URL,
		Permalink: post.Permalink,
		Subreddit: post.Subreddit,
	}, attachments, post.Removed)
	if err != nil || !created || post.Removed {
		return nil, created, err
	}
	if len(stored) == 0 {
		return []workflow.Task{workflow.TextOnly{ItemID: post.ID}}, true, nil
	}
	tasks := make([]workflow.Task, 0, len(stored))
	for _, att := range stored {
		tasks = append(tasks, workflow.Download{ItemID: post.ID, AttachmentID: att.ID})
	}
	return tasks, true, nil
}

type discardAlerts struct{}

func (discardAlerts) Alert(context.Context, string, string) {}
