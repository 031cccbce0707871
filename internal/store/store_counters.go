package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AdjustDiskUsage adds delta (which may be negative) to the disk counter,
// clamping at zero, and returns the new value.
func (s *Store) AdjustDiskUsage(ctx context.Context, delta int64) (int64, error) {
	ctx = ensureContext(ctx)
	var usage int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := adjustDiskUsageTx(ctx, tx, delta, s.timestamp()); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT bytes FROM disk_usage WHERE id = 1`).Scan(&usage)
	})
	if err != nil {
		return 0, fmt.Errorf("adjust disk usage: %w", err)
	}
	return usage, nil
}

// DiskUsage returns the bytes currently held in local storage.
func (s *Store) DiskUsage(ctx context.Context) (int64, error) {
	var usage int64
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT bytes FROM disk_usage WHERE id = 1`).Scan(&usage); err != nil {
		return 0, fmt.Errorf("read disk usage: %w", err)
	}
	return usage, nil
}

func adjustDiskUsageTx(ctx context.Context, tx *sql.Tx, delta int64, timestamp string) error {
	if delta == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE disk_usage SET bytes = MAX(0, bytes + ?), updated_at = ? WHERE id = 1`,
		delta, timestamp,
	)
	return err
}

// RecordStats appends one statistics row. Zero deltas are not written.
func (s *Store) RecordStats(ctx context.Context, delta StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO stats (
            posts_delivered, files_delivered, bytes_delivered, posts_failed,
            posts_skipped, tasks_enqueued, posts_seen, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		delta.PostsDelivered,
		delta.FilesDelivered,
		delta.BytesDelivered,
		delta.PostsFailed,
		delta.PostsSkipped,
		delta.TasksEnqueued,
		delta.PostsSeen,
		s.timestamp(),
	); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Stats aggregates every statistics row recorded inside period.
func (s *Store) Stats(ctx context.Context, period Period) (Stats, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return Stats{}, err
	}
	if period == "" {
		period = PeriodAll
	}
	query := `SELECT
        COALESCE(SUM(posts_delivered), 0),
        COALESCE(SUM(files_delivered), 0),
        COALESCE(SUM(bytes_delivered), 0),
        COALESCE(SUM(posts_failed), 0),
        COALESCE(SUM(posts_skipped), 0),
        COALESCE(SUM(tasks_enqueued), 0),
        COALESCE(SUM(posts_seen), 0)
        FROM stats`
	var args []any
	if window := period.Window(); window > 0 {
		query += ` WHERE recorded_at >= ?`
		args = append(args, formatTime(s.now().Add(-window)))
	}

	out := Stats{Period: period}
	if err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(
		&out.PostsDelivered,
		&out.FilesDelivered,
		&out.BytesDelivered,
		&out.PostsFailed,
		&out.PostsSkipped,
		&out.TasksEnqueued,
		&out.PostsSeen,
	); err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return out, nil
}
