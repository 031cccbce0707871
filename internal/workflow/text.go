package workflow

import (
	"context"
	"fmt"
	"strings"

	"likevault/internal/logging"
	"likevault/internal/retry"
	"likevault/internal/store"
	"likevault/internal/telegram"
)

func (m *Manager) handleText(ctx context.Context, task TextOnly) error {
	item, err := m.store.GetItem(ctx, task.ItemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status.Terminal() {
		return nil
	}
	if strings.TrimSpace(item.Body) == "" {
		_, err := m.settleItem(ctx, item.ID, store.ItemSkippedEmpty, "post has no media and no text", store.StatsDelta{})
		return err
	}

	text := telegram.PostText(item.Title, item.Body, SourceLink(item))
	subject := fmt.Sprintf("Text post %s", item.ID)
	result := retry.Run(ctx, m.policy, subject,
		func(ctx context.Context, _ int) retry.Outcome[int] {
			id, err := m.deps.Delivery.SendText(ctx, text)
			return retry.FromError(id, err)
		},
		retry.WithSleeper(m.sleep),
		retry.WithAlert(m.retryAlert),
		retry.WithLogger(m.logger),
		retry.WithObserver(m.countItemRetry(item.ID)),
	)

	switch result.Status {
	case retry.StatusSucceeded:
		m.recordMessage(context.WithoutCancel(ctx), item.ID, result.Value, store.MessageText)
		logging.WithContext(ctx, m.logger).Debug("text delivered", logging.Int("message_id", result.Value))
		_, err := m.settleItem(ctx, item.ID, store.ItemUploaded, "", store.StatsDelta{PostsDelivered: 1})
		return err
	case retry.StatusCanceled:
		return result.Err
	default:
		return m.failDelivery(ctx, item.ID, subject, retry.Result[struct{}]{
			Err:      result.Err,
			Attempts: result.Attempts,
			Status:   result.Status,
		})
	}
}
