package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"likevault/internal/logging"
	"likevault/internal/retry"
	"likevault/internal/store"
)

// settleItem moves an item to a terminal status, releases its local files
// and appends the matching stats row. Losing the race to another settler is
// not an error; settled reports whether this call made the transition. The
// work runs detached from cancellation so a shutdown never leaves a settled
// item holding disk budget.
func (m *Manager) settleItem(ctx context.Context, itemID string, status store.ItemStatus, message string, delta store.StatsDelta) (settled bool, err error) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.TransitionItem(ctx, itemID, status, message); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			logger.Debug("item already settled", logging.String("wanted_status", string(status)))
			return false, nil
		}
		return false, err
	}

	m.releaseFiles(ctx, itemID, "item "+string(status))

	if delta.IsZero() {
		switch {
		case status.Skipped():
			delta.PostsSkipped = 1
		case status.Failed():
			delta.PostsFailed = 1
		}
	}
	if err := m.store.RecordStats(ctx, delta); err != nil {
		logging.WarnWithContext(logger, "stats not recorded", "stats_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stats undercount this post"),
			logging.String(logging.FieldErrorHint, "check the state database"),
		)
	}

	attrs := []logging.Attr{logging.String("status", string(status))}
	if message != "" {
		attrs = append(attrs, logging.String("reason", message))
	}
	if status == store.ItemUploaded {
		logger.Info("post delivered", logging.Args(attrs...)...)
	} else {
		logging.WarnWithContext(logger, "post settled without delivery", "item_"+string(status),
			append(attrs,
				logging.String(logging.FieldImpact, "post will not appear in the channel"),
				logging.String(logging.FieldErrorHint, "see reason; the post is not retried automatically"),
			)...,
		)
	}
	return true, nil
}

// releaseFiles deletes every local file of an item, decrementing the disk
// counter, and fails attachments that never finished downloading.
func (m *Manager) releaseFiles(ctx context.Context, itemID, reason string) {
	logger := logging.WithContext(ctx, m.logger)
	atts, err := m.store.ListAttachments(ctx, itemID)
	if err != nil {
		logger.Warn("list attachments for cleanup failed", logging.Error(err),
			logging.String(logging.FieldEventType, "cleanup_failed"),
			logging.String(logging.FieldImpact, "local files may linger and hold disk budget"),
			logging.String(logging.FieldErrorHint, "check the state database"),
		)
		return
	}
	var released int64
	for _, att := range atts {
		switch att.Status {
		case store.AttachmentPending, store.AttachmentDeferredDiskFull:
			if err := m.store.TransitionAttachment(ctx, att.ID, store.AttachmentFailed, reason); err != nil {
				logger.Debug("fail unfinished attachment", logging.Int64("attachment", att.ID), logging.Error(err))
			}
			continue
		case store.AttachmentDeleted:
			continue
		}
		if att.LocalPath == "" {
			continue
		}
		removeFile(logger, att.LocalPath)
		size, err := m.store.MarkAttachmentDeleted(ctx, att.ID)
		if err != nil {
			logger.Debug("mark attachment deleted", logging.Int64("attachment", att.ID), logging.Error(err))
			continue
		}
		released += size
	}
	_ = os.Remove(filepath.Join(m.cfg.Paths.DownloadDir, itemID))
	if released > 0 {
		logger.Debug("local files released", logging.Bytes("released", released))
	}
}

func removeFile(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove local file failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "file_remove_failed"),
			logging.String(logging.FieldImpact, "orphaned file uses disk outside the budget"),
			logging.String(logging.FieldErrorHint, "check permissions on download_dir"),
		)
	}
}

func (m *Manager) alert(ctx context.Context, title, message string) {
	m.deps.Alerts.Alert(ctx, title, message)
}

func (m *Manager) retryAlert(ctx context.Context, a retry.Alert) {
	m.deps.Alerts.Alert(ctx, a.Title(), a.Text())
}
