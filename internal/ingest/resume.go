package ingest

import (
	"context"
	"fmt"

	"likevault/internal/logging"
	"likevault/internal/store"
	"likevault/internal/workflow"
)

// Resume re-queues every item left at status fetched by a previous run,
// rebuilding its tasks from durable attachment state. Deferral counters start
// over. It returns the number of items resumed.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	items, err := s.store.ListItemsByStatus(ctx, store.ItemFetched)
	if err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}
	logger := logging.WithContext(ctx, s.logger)

	var tasks []workflow.Task
	var reconcile []string
	for _, item := range items {
		if err := s.store.ReleasePublishClaim(ctx, item.ID); err != nil {
			return 0, fmt.Errorf("resume %s: %w", item.ID, err)
		}
		atts, err := s.store.ListAttachments(ctx, item.ID)
		if err != nil {
			return 0, fmt.Errorf("resume %s: %w", item.ID, err)
		}
		if len(atts) == 0 {
			tasks = append(tasks, workflow.TextOnly{ItemID: item.ID})
			continue
		}
		pending := 0
		for _, att := range atts {
			if !att.Status.Concluded() {
				tasks = append(tasks, workflow.Download{ItemID: item.ID, AttachmentID: att.ID})
				pending++
			}
		}
		if pending == 0 {
			reconcile = append(reconcile, item.ID)
		}
	}

	s.pipeline.Enqueue(tasks...)
	for _, id := range reconcile {
		if err := s.pipeline.Reconcile(ctx, id); err != nil {
			logging.WarnWithContext(logger, "resume could not reconcile item", "resume_reconcile_failed",
				logging.String(logging.FieldItemID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item stays fetched until the next restart"),
				logging.String(logging.FieldErrorHint, "check the state database"),
			)
		}
	}
	if len(items) > 0 {
		logger.Info("resumed unfinished items",
			logging.Int("items", len(items)),
			logging.Int("tasks", len(tasks)),
			logging.Int("reconciled", len(reconcile)),
		)
	}
	return len(items), nil
}
