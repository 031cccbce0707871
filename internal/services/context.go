package services

import "context"

type contextKey string

const (
	itemIDKey       contextKey = "item_id"
	attachmentIDKey contextKey = "attachment_id"
	taskKey         contextKey = "task"
	workerKey       contextKey = "worker"
	requestIDKey    contextKey = "request_id"
)

// WithItemID annotates context with the source item identifier.
func WithItemID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the source item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithAttachmentID annotates context with the attachment identifier.
func WithAttachmentID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, attachmentIDKey, id)
}

// AttachmentIDFromContext extracts the attachment identifier if present.
func AttachmentIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(attachmentIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithTask annotates context with the task kind being processed.
func WithTask(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, kind)
}

// TaskFromContext returns the task kind if present.
func TaskFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(taskKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithWorker annotates context with the worker label.
func WithWorker(ctx context.Context, worker string) context.Context {
	if worker == "" {
		return ctx
	}
	return context.WithValue(ctx, workerKey, worker)
}

// WorkerFromContext returns the worker label if present.
func WorkerFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(workerKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
