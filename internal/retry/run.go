package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"likevault/internal/logging"
	"likevault/internal/services"
)

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is called after every failed attempt that will be retried, with
// the delay before the next attempt.
type Observer func(ctx context.Context, attempt int, err error, delay time.Duration)

type runner struct {
	sleep    Sleeper
	alert    AlertFunc
	observer Observer
	logger   *slog.Logger
}

// Option customizes a run.
type Option func(*runner)

// WithSleeper replaces the timer-based wait.
func WithSleeper(sleep Sleeper) Option {
	return func(r *runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithAlert routes escalation events to fn.
func WithAlert(fn AlertFunc) Option {
	return func(r *runner) { r.alert = fn }
}

// WithObserver registers a per-failure hook.
func WithObserver(fn Observer) Option {
	return func(r *runner) { r.observer = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// TimerSleep waits using a timer and honours cancellation.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes op until it succeeds, fails fatally, exhausts policy.MaxRetries
// attempts, or ctx is canceled during a backoff wait.
func Run[T any](ctx context.Context, policy Policy, subject string, op func(ctx context.Context, attempt int) Outcome[T], opts ...Option) Result[T] {
	r := runner{sleep: TimerSleep, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&r)
	}
	if err := policy.Validate(); err != nil {
		return Result[T]{Err: err, Status: StatusAborted}
	}
	logger := logging.WithContext(ctx, r.logger)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Err: canceledError(err, lastErr), Attempts: attempt - 1, Status: StatusCanceled}
		}

		outcome := op(ctx, attempt)
		switch outcome.kind {
		case outcomeSuccess:
			if attempt > policy.AlertAfter {
				r.emit(ctx, Alert{Kind: AlertRecovery, Subject: subject, Attempt: attempt, MaxRetries: policy.MaxRetries})
			}
			if attempt > 1 {
				logger.Info("operation recovered", logging.String("subject", subject), logging.Int("attempt", attempt))
			}
			return Result[T]{Value: outcome.value, Attempts: attempt, Status: StatusSucceeded}
		case outcomeFatal:
			logger.Debug("operation failed permanently",
				logging.String("subject", subject),
				logging.Int("attempt", attempt),
				logging.Error(outcome.err),
			)
			return Result[T]{Err: outcome.err, Attempts: attempt, Status: StatusAborted}
		}

		lastErr = outcome.err
		if attempt == policy.AlertAfter {
			r.emit(ctx, Alert{Kind: AlertWarning, Subject: subject, Attempt: attempt, MaxRetries: policy.MaxRetries, Err: lastErr})
		}
		if attempt == policy.MaxRetries {
			r.emit(ctx, Alert{Kind: AlertFinal, Subject: subject, Attempt: attempt, MaxRetries: policy.MaxRetries, Err: lastErr})
			logging.ErrorWithContext(logger, "retries exhausted", "retry_exhausted",
				logging.String("subject", subject),
				logging.Int("attempts", attempt),
				logging.Error(lastErr),
				logging.String(logging.FieldErrorHint, "check network reachability of the failing endpoint"),
			)
			break
		}

		delay := policy.Delay(attempt)
		if hint, ok := services.RetryAfter(lastErr); ok && hint > delay {
			delay = hint
		}
		logging.WarnWithContext(logger, "attempt failed, backing off", "retry_backoff",
			logging.String("subject", subject),
			logging.Int("attempt", attempt),
			logging.Int("max_retries", policy.MaxRetries),
			logging.Duration("delay", delay),
			logging.Error(lastErr),
			logging.String(logging.FieldImpact, "delivery delayed"),
			logging.String(logging.FieldErrorHint, "transient failures recover on their own"),
		)
		if r.observer != nil {
			r.observer(ctx, attempt, lastErr, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return Result[T]{Err: canceledError(err, lastErr), Attempts: attempt, Status: StatusCanceled}
		}
	}
	return Result[T]{Err: lastErr, Attempts: policy.MaxRetries, Status: StatusExhausted}
}

func (r runner) emit(ctx context.Context, alert Alert) {
	if r.alert == nil {
		return
	}
	r.alert(ctx, alert)
}

func canceledError(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last failure: %w)", ctxErr, lastErr)
}
