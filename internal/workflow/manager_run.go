package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"likevault/internal/logging"
	"likevault/internal/services"
)

// Start launches the worker pool. Workers stop pulling tasks when ctx is done
// or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.store == nil || m.deps.Guard == nil || m.deps.Downloader == nil || m.deps.Delivery == nil {
		return errors.New("workflow dependencies not configured")
	}
	if err := m.policy.Validate(); err != nil {
		return err
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	m.stopLoops = stopLoops
	m.cancelTasks = cancelTasks
	m.running = true
	m.startedAt = time.Now()

	m.wg.Add(m.workers)
	for i := 1; i <= m.workers; i++ {
		go m.runWorker(loopCtx, taskCtx, i)
	}
	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Int("queued", m.queue.Len()),
	)
	return nil
}

// Stop stops the workers after their in-flight task. Tasks still running
// after the shutdown grace period have their context canceled.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopLoops, cancelTasks := m.stopLoops, m.cancelTasks
	m.running = false
	m.stopLoops, m.cancelTasks = nil, nil
	m.mu.Unlock()

	stopLoops()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var grace <-chan time.Time
	if m.grace > 0 {
		timer := time.NewTimer(m.grace)
		defer timer.Stop()
		grace = timer.C
	}
	select {
	case <-done:
	case <-grace:
		m.logger.Info("shutdown grace elapsed, canceling in-flight tasks",
			logging.Int64("active", m.active.Load()),
		)
		cancelTasks()
		<-done
	}
	cancelTasks()
	m.logger.Info("workflow stopped", logging.Int("queued", m.queue.Len()))
}

func (m *Manager) runWorker(loopCtx, taskCtx context.Context, index int) {
	defer m.wg.Done()
	label := "worker-" + strconv.Itoa(index)

	for {
		if loopCtx.Err() != nil {
			return
		}
		task, ok := m.queue.Dequeue(loopCtx, m.dequeueTimeout)
		if !ok {
			continue
		}

		ctx := services.WithWorker(taskCtx, label)
		ctx = services.WithItemID(ctx, task.Item())
		ctx = services.WithTask(ctx, string(task.Kind()))
		ctx = services.WithRequestID(ctx, uuid.NewString())
		if d, isDownload := task.(Download); isDownload {
			ctx = services.WithAttachmentID(ctx, d.AttachmentID)
		}

		m.active.Add(1)
		err := m.dispatch(ctx, task)
		m.active.Add(-1)
		m.processed.Add(1)
		if err != nil {
			m.recordTaskError(ctx, task, err)
		}
	}
}

// dispatch runs the handler for task. A panicking handler is reported as an
// error so the worker survives.
func (m *Manager) dispatch(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", task, r, debug.Stack())
		}
	}()
	switch t := task.(type) {
	case Download:
		return m.handleDownload(ctx, t)
	case Publish:
		return m.handlePublish(ctx, t)
	case TextOnly:
		return m.handleText(ctx, t)
	default:
		return fmt.Errorf("unsupported task %T", task)
	}
}

func (m *Manager) recordTaskError(ctx context.Context, task Task, err error) {
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(err, context.Canceled) {
		logger.Info("task interrupted by shutdown", logging.String("task_detail", task.String()))
		return
	}
	m.failed.Add(1)
	m.setLastError(err)
	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.String("task_detail", task.String()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state database and the item's attachments"),
	)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
