package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"likevault/internal/fetch"
	"likevault/internal/logging"
	"likevault/internal/quota"
	"likevault/internal/retry"
	"likevault/internal/services"
	"likevault/internal/store"
)

func (m *Manager) handleDownload(ctx context.Context, task Download) error {
	logger := logging.WithContext(ctx, m.logger)

	item, err := m.store.GetItem(ctx, task.ItemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status.Terminal() {
		logger.Debug("dropping download for settled item")
		return nil
	}
	att, err := m.store.GetAttachment(ctx, task.AttachmentID)
	if err != nil {
		return err
	}
	if att == nil || att.ItemID != item.ID {
		logging.WarnWithContext(logger, "download task references unknown attachment", "attachment_missing",
			logging.String(logging.FieldImpact, "task dropped"),
			logging.String(logging.FieldErrorHint, "the state database may have been edited by hand"),
		)
		return nil
	}
	if att.Status.Concluded() {
		return m.maybePublish(ctx, item.ID)
	}

	reservation, decision, err := m.deps.Guard.Admit(ctx, att.DeclaredSize)
	switch {
	case err != nil:
		logger.Debug("admission check failed, deferring", logging.Error(err))
		return m.deferDownload(ctx, task, att, string(quota.DecisionOverQuota))
	case decision == quota.DecisionOversize:
		cause := services.Wrap(services.ErrOversize, "download", "admit",
			fmt.Sprintf("declared size %d exceeds the per-file cap", att.DeclaredSize), nil)
		m.failAttachment(ctx, att, cause)
		return m.maybePublish(ctx, item.ID)
	case !decision.Admitted():
		return m.deferDownload(ctx, task, att, string(decision))
	}
	defer reservation.Release()

	subject := fmt.Sprintf("Download %s #%d", item.ID, att.Position+1)
	result := retry.Run(ctx, m.policy, subject,
		func(ctx context.Context, _ int) retry.Outcome[fetch.Result] {
			res, err := m.deps.Downloader.Download(ctx, fetch.Request{
				URL:      att.URL,
				Kind:     att.Kind,
				Dir:      filepath.Join(m.cfg.Paths.DownloadDir, item.ID),
				Name:     strconv.FormatInt(att.ID, 10),
				MaxBytes: m.cfg.FileCapBytes(),
			})
			return retry.FromError(res, err)
		},
		retry.WithSleeper(m.sleep),
		retry.WithAlert(m.retryAlert),
		retry.WithLogger(m.logger),
		retry.WithObserver(func(ctx context.Context, _ int, err error, _ time.Duration) {
			if recErr := m.store.RecordAttachmentRetry(ctx, att.ID, err.Error()); recErr != nil {
				logger.Debug("record attachment retry failed", logging.Error(recErr))
			}
		}),
	)

	switch result.Status {
	case retry.StatusSucceeded:
	case retry.StatusCanceled:
		return result.Err
	default:
		m.failAttachment(ctx, att, result.Err)
		if result.Status == retry.StatusAborted {
			m.alert(ctx, "Download failed", fmt.Sprintf("%s failed permanently: %s", subject, services.Truncate(result.Err, 100)))
		}
		return m.maybePublish(ctx, item.ID)
	}

	stored := result.Value
	if err := m.deps.Guard.CheckActual(ctx, stored.Size, reservation); err != nil {
		removeFile(logger, stored.Path)
		if errors.Is(err, services.ErrOversize) {
			m.failAttachment(ctx, att, err)
			return m.maybePublish(ctx, item.ID)
		}
		return m.deferDownload(ctx, task, att, string(quota.DecisionOverQuota))
	}
	if err := m.store.MarkAttachmentDownloaded(ctx, att.ID, stored.Path, stored.Size); err != nil {
		removeFile(logger, stored.Path)
		return err
	}
	logger.Info("attachment downloaded",
		logging.Bytes("size", stored.Size),
		logging.String("path", stored.Path),
		logging.Int("attempts", result.Attempts),
	)
	return m.maybePublish(ctx, item.ID)
}

// deferDownload pushes task back in the queue, or skips the whole item once
// the task has been deferred more than the configured bound.
func (m *Manager) deferDownload(ctx context.Context, task Download, att *store.Attachment, reason string) error {
	logger := logging.WithContext(ctx, m.logger)
	task.Deferrals++
	if task.Deferrals > m.maxDeferrals {
		message := fmt.Sprintf("disk budget unavailable after %d deferrals (%s)", m.maxDeferrals, reason)
		settled, err := m.settleItem(ctx, task.ItemID, store.ItemSkippedSizeExceeded, message, store.StatsDelta{})
		if settled {
			m.alert(ctx, "Post skipped", fmt.Sprintf("Post %s skipped: %s", task.ItemID, message))
		}
		return err
	}

	if att.Status == store.AttachmentPending {
		if err := m.store.TransitionAttachment(ctx, att.ID, store.AttachmentDeferredDiskFull, reason); err != nil {
			return err
		}
	}
	position := m.queue.Defer(task, m.deferOffset)
	logger.Info("download deferred",
		logging.String("reason", reason),
		logging.Int("deferrals", task.Deferrals),
		logging.Int("max_deferrals", m.maxDeferrals),
		logging.Int("position", position),
	)
	return nil
}

// failAttachment marks att failed. The owning item is settled by maybePublish.
func (m *Manager) failAttachment(ctx context.Context, att *store.Attachment, cause error) {
	logger := logging.WithContext(ctx, m.logger)
	message := services.Truncate(cause, 500)
	if err := m.store.TransitionAttachment(ctx, att.ID, store.AttachmentFailed, message); err != nil {
		logger.Debug("attachment failure not recorded", logging.Error(err))
		return
	}
	logging.WarnWithContext(logger, "attachment failed", "attachment_failed",
		logging.Error(cause),
		logging.String(logging.FieldImpact, "post will be delivered without this file"),
		logging.String(logging.FieldErrorHint, "the source URL may be gone or larger than max_file_size_mb"),
	)
}

// maybePublish hands an item over to delivery once none of its attachments
// still needs download work. Items whose downloads all failed are settled as
// download_failed.
func (m *Manager) maybePublish(ctx context.Context, itemID string) error {
	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status.Terminal() {
		return nil
	}
	atts, err := m.store.ListAttachments(ctx, itemID)
	if err != nil {
		return err
	}
	var ready []int64
	delivered := 0
	for _, att := range atts {
		switch {
		case !att.Status.Concluded():
			return nil
		case att.Status == store.AttachmentDownloaded:
			ready = append(ready, att.ID)
		case att.Status == store.AttachmentUploaded:
			delivered++
		}
	}
	if len(atts) == 0 {
		return nil
	}
	if len(ready) == 0 && delivered == 0 {
		message := fmt.Sprintf("all %d attachments failed to download", len(atts))
		settled, err := m.settleItem(ctx, itemID, store.ItemDownloadFailed, message, store.StatsDelta{})
		if settled {
			m.alert(ctx, "Download failed", fmt.Sprintf("Post %s: %s", itemID, message))
		}
		return err
	}

	claimed, err := m.store.ClaimPublish(ctx, itemID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	m.queue.Enqueue(Publish{ItemID: itemID, AttachmentIDs: ready})
	logging.WithContext(ctx, m.logger).Debug("publish queued", logging.Int("files", len(ready)))
	return nil
}

// Reconcile re-evaluates an item whose attachments may all have settled,
// queueing delivery or settling it as failed.
func (m *Manager) Reconcile(ctx context.Context, itemID string) error {
	return m.maybePublish(services.WithItemID(ctx, itemID), itemID)
}
