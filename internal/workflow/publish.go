package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"likevault/internal/logging"
	"likevault/internal/retry"
	"likevault/internal/services"
	"likevault/internal/store"
	"likevault/internal/telegram"
)

const sourceHost = "https://reddit.com"

type delivered struct {
	files int64
	bytes int64
}

func (m *Manager) handlePublish(ctx context.Context, task Publish) error {
	logger := logging.WithContext(ctx, m.logger)

	item, err := m.store.GetItem(ctx, task.ItemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status.Terminal() {
		return nil
	}
	atts, err := m.store.ListAttachments(ctx, item.ID)
	if err != nil {
		return err
	}

	wanted := make(map[int64]bool, len(task.AttachmentIDs))
	for _, id := range task.AttachmentIDs {
		wanted[id] = true
	}
	sizes := make(map[int64]int64, len(atts))
	var pending []telegram.MediaFile
	var sent delivered
	for _, att := range atts {
		switch {
		case att.Status == store.AttachmentUploaded:
			sent.files++
			sent.bytes += att.Size
		case att.Status == store.AttachmentDownloaded && (len(wanted) == 0 || wanted[att.ID]):
			sizes[att.ID] = att.Size
			pending = append(pending, telegram.MediaFile{
				Ref:     att.ID,
				Path:    att.LocalPath,
				Kind:    att.Kind,
				Caption: att.Caption,
			})
		}
	}

	caption := telegram.PostCaption(item.Title, item.Body, SourceLink(item))
	subject := fmt.Sprintf("Publish %s", item.ID)
	var unrecorded []telegram.Receipt
	result := retry.Run(ctx, m.policy, subject,
		func(ctx context.Context, _ int) retry.Outcome[struct{}] {
			if unrecorded = m.storeReceipts(ctx, unrecorded); len(unrecorded) > 0 {
				return retry.Failure[struct{}](receiptError(unrecorded))
			}
			if len(pending) == 0 {
				return retry.Success(struct{}{})
			}
			receipts, err := m.deps.Delivery.SendMedia(ctx, telegram.Batch{Files: pending, Caption: caption})
			pending = m.recordReceipts(ctx, item.ID, pending, receipts, sizes, &sent)
			if unrecorded = m.storeReceipts(ctx, receipts); len(unrecorded) > 0 && err == nil {
				err = receiptError(unrecorded)
			}
			return retry.FromError(struct{}{}, err)
		},
		retry.WithSleeper(m.sleep),
		retry.WithAlert(m.retryAlert),
		retry.WithLogger(m.logger),
		retry.WithObserver(m.countItemRetry(item.ID)),
	)

	switch result.Status {
	case retry.StatusSucceeded:
		_, err := m.settleItem(ctx, item.ID, store.ItemUploaded, "", store.StatsDelta{
			PostsDelivered: 1,
			FilesDelivered: sent.files,
			BytesDelivered: sent.bytes,
		})
		return err
	case retry.StatusCanceled:
		if err := m.store.ReleasePublishClaim(context.WithoutCancel(ctx), item.ID); err != nil {
			logger.Debug("release publish claim", logging.Error(err))
		}
		return result.Err
	default:
		return m.failDelivery(ctx, item.ID, subject, result)
	}
}

// recordReceipts accounts delivered files and returns the ones that still
// need sending. Receipts are persisted separately by storeReceipts.
func (m *Manager) recordReceipts(ctx context.Context, itemID string, pending []telegram.MediaFile, receipts []telegram.Receipt, sizes map[int64]int64, sent *delivered) []telegram.MediaFile {
	if len(receipts) == 0 {
		return pending
	}
	ctx = context.WithoutCancel(ctx)
	done := make(map[int64]bool, len(receipts))
	for _, receipt := range receipts {
		done[receipt.Ref] = true
		sent.files++
		sent.bytes += sizes[receipt.Ref]
		m.recordMessage(ctx, itemID, receipt.MessageID, store.MessageMedia)
	}
	remaining := pending[:0:0]
	for _, file := range pending {
		if !done[file.Ref] {
			remaining = append(remaining, file)
		}
	}
	return remaining
}

// storeReceipts marks delivered attachments uploaded and returns the receipts
// that could not be written. Those files are already in the channel, so they
// are retried as writes and never sent again.
func (m *Manager) storeReceipts(ctx context.Context, receipts []telegram.Receipt) []telegram.Receipt {
	if len(receipts) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, m.logger)
	var failed []telegram.Receipt
	for _, receipt := range receipts {
		if err := m.store.MarkAttachmentUploaded(ctx, receipt.Ref, receipt.MessageID); err != nil {
			logger.Warn("uploaded attachment not recorded",
				logging.Int64("attachment", receipt.Ref),
				logging.Error(err),
				logging.String(logging.FieldEventType, "receipt_write_failed"),
				logging.String(logging.FieldImpact, "post is held back until the receipt is stored"),
				logging.String(logging.FieldErrorHint, "check the state database"),
			)
			failed = append(failed, receipt)
		}
	}
	return failed
}

func receiptError(unrecorded []telegram.Receipt) error {
	return services.Wrap(services.ErrTransient, "publish", "record receipt",
		fmt.Sprintf("%d delivered attachment(s) not recorded", len(unrecorded)), nil)
}

func (m *Manager) recordMessage(ctx context.Context, itemID string, messageID int, kind store.MessageKind) {
	err := m.store.RecordMessage(ctx, store.Message{
		MessageID: messageID,
		ItemID:    itemID,
		ChatID:    m.deps.Delivery.ChatID(),
		Kind:      kind,
	})
	if err != nil {
		logging.WithContext(ctx, m.logger).Debug("record message", logging.Int("message_id", messageID), logging.Error(err))
	}
}

func (m *Manager) countItemRetry(itemID string) retry.Observer {
	return func(ctx context.Context, _ int, _ error, _ time.Duration) {
		if _, err := m.store.IncrementItemRetry(ctx, itemID); err != nil {
			logging.WithContext(ctx, m.logger).Debug("record item retry", logging.Error(err))
		}
	}
}

// failDelivery settles an item whose delivery gave up.
func (m *Manager) failDelivery(ctx context.Context, itemID, subject string, result retry.Result[struct{}]) error {
	message := services.Truncate(result.Err, 500)
	settled, err := m.settleItem(ctx, itemID, store.ItemDeliveryFailed, message, store.StatsDelta{})
	if settled && result.Status == retry.StatusAborted {
		m.alert(ctx, "Delivery failed", fmt.Sprintf("%s failed permanently: %s", subject, services.Truncate(result.Err, 100)))
	}
	return err
}

// SourceLink returns the canonical link for an item.
func SourceLink(item *store.Item) string {
	if item == nil {
		return ""
	}
	if permalink := strings.TrimSpace(item.Permalink); permalink != "" {
		if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
			return permalink
		}
		if !strings.HasPrefix(permalink, "/") {
			permalink = "/" + permalink
		}
		return sourceHost + permalink
	}
	return strings.TrimSpace(item.URL)
}
