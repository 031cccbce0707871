package notifications

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"likevault/internal/logging"
)

// DefaultQueueSize bounds pending alerts when the configuration leaves it unset.
const DefaultQueueSize = 64

// sendTimeout bounds one background delivery.
const sendTimeout = 30 * time.Second

// Sink delivers notifications asynchronously. Alert never blocks.
type Sink struct {
	service Service
	logger  *slog.Logger
	queue   chan Notification

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
	sent    atomic.Int64
}

// NewSink starts the delivery goroutine. Close must be called to drain it.
func NewSink(service Service, queueSize int, logger *slog.Logger) *Sink {
	if service == nil {
		service = noopService{}
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Sink{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		queue:   make(chan Notification, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Alert queues a high-priority notification with the given title.
func (s *Sink) Alert(ctx context.Context, title, message string) {
	s.Notify(ctx, Notification{Title: title, Message: message, Tags: []string{"warning"}, Priority: PriorityHigh})
}

// Notify queues a notification. When the queue is full it is dropped.
func (s *Sink) Notify(_ context.Context, n Notification) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- n:
	default:
		s.dropped.Add(1)
		logging.WarnWithContext(s.logger, "alert dropped", "alert_dropped",
			logging.String("title", n.Title),
			logging.String(logging.FieldImpact, "operator will not see this alert"),
			logging.String(logging.FieldErrorHint, "check ntfy and telegram reachability"),
		)
	}
}

// Send delivers n synchronously, bypassing the queue.
func (s *Sink) Send(ctx context.Context, n Notification) error {
	if s == nil {
		return nil
	}
	return s.service.Send(ctx, n)
}

// Dropped returns how many alerts were discarded because the queue was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Sent returns how many alerts were delivered without error.
func (s *Sink) Sent() int64 {
	return s.sent.Load()
}

// Close stops accepting alerts and waits until queued ones are delivered or
// ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for n := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := s.service.Send(ctx, n)
		cancel()
		if err != nil {
			logging.WarnWithContext(s.logger, "alert delivery failed", "alert_failed",
				logging.String("title", n.Title),
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator alert lost"),
				logging.String(logging.FieldErrorHint, "verify notifications.ntfy_topic and telegram.admin_id"),
			)
			continue
		}
		s.sent.Add(1)
	}
}
