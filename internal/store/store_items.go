package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateItem inserts an item at status fetched. It reports false without error
// when an item with the same identifier already exists.
func (s *Store) CreateItem(ctx context.Context, item NewItem) (bool, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return false, errors.New("create item: identifier is required")
	}
	timestamp := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO items (
            id, author, title, body, url, permalink, subreddit, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(item.Author),
		nullableString(item.Title),
		nullableString(item.Body),
		nullableString(item.URL),
		nullableString(item.Permalink),
		nullableString(item.Subreddit),
		ItemFetched,
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return false, fmt.Errorf("insert item rows affected: %w", err)
	}
	return affected == 1, nil
}

// IngestItem records a newly discovered item together with its attachments
// in one transaction, so a failure leaves neither behind. A removed item is
// stored directly at skipped_deleted and its attachments are ignored.
// created is false, and nothing is written, when the item already exists.
func (s *Store) IngestItem(ctx context.Context, item NewItem, attachments []NewAttachment, removed bool) (bool, []*Attachment, error) {
	ctx = ensureContext(ctx)
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return false, nil, errors.New("ingest item: identifier is required")
	}
	status, errorMessage := ItemFetched, ""
	if removed {
		status, errorMessage = ItemSkippedDeleted, "removed upstream"
		attachments = nil
	}
	for i, att := range attachments {
		if strings.TrimSpace(att.URL) == "" {
			return false, nil, fmt.Errorf("ingest item %s: attachment %d: url is required", id, i)
		}
	}

	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = false
		timestamp := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO items (
                id, author, title, body, url, permalink, subreddit, status, error_message, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			nullableString(item.Author),
			nullableString(item.Title),
			nullableString(item.Body),
			nullableString(item.URL),
			nullableString(item.Permalink),
			nullableString(item.Subreddit),
			status,
			nullableString(errorMessage),
			timestamp,
			timestamp,
		)
		if err != nil {
			return err
		}
		affected, err := rowsAffected(res)
		if err != nil || affected != 1 {
			return err
		}
		created = true
		for _, att := range attachments {
			kind := att.Kind
			if kind == "" {
				kind = KindDocument
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attachments (
                    item_id, position, url, kind, caption, declared_size, status, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, att.Position, att.URL, kind, nullableString(att.Caption), max(att.DeclaredSize, 0),
				AttachmentPending, timestamp, timestamp,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("ingest item %s: %w", id, err)
	}
	if !created || len(attachments) == 0 {
		return created, nil, nil
	}
	stored, err := s.ListAttachments(ctx, id)
	if err != nil {
		return true, nil, err
	}
	return true, stored, nil
}

// GetItem fetches an item by identifier. It returns nil when the item is unknown.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemExists reports whether an item with id has been recorded.
func (s *Store) ItemExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT EXISTS(SELECT 1 FROM items WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("item exists: %w", err)
	}
	return exists == 1, nil
}

// TransitionItem moves a fetched item to a terminal status. Any other move
// returns ErrInvalidTransition, and the row is left untouched.
func (s *Store) TransitionItem(ctx context.Context, id string, to ItemStatus, errorMessage string) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: item %s cannot move to %q", ErrInvalidTransition, id, to)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		nullableString(errorMessage),
		s.timestamp(),
		id,
		ItemFetched,
	)
	if err != nil {
		return fmt.Errorf("transition item: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("transition item rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	current, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: item %s is %s, cannot move to %s", ErrInvalidTransition, id, current.Status, to)
}

// IncrementItemRetry bumps the item retry counter and returns the new value.
func (s *Store) IncrementItemRetry(ctx context.Context, id string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
			s.timestamp(), id,
		)
		if err != nil {
			return err
		}
		if affected, _ := rowsAffected(res); affected == 0 {
			return fmt.Errorf("%w: item %s", ErrNotFound, id)
		}
		return tx.QueryRowContext(ctx, `SELECT retry_count FROM items WHERE id = ?`, id).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("increment item retry: %w", err)
	}
	return count, nil
}

// ClaimPublish marks the item as claimed for delivery. Only the first caller
// for a given item receives true.
func (s *Store) ClaimPublish(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items SET publish_claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND publish_claimed_at IS NULL`,
		now, now, id, ItemFetched,
	)
	if err != nil {
		return false, fmt.Errorf("claim publish: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return false, fmt.Errorf("claim publish rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleasePublishClaim clears an unfinished claim so a later resume can deliver the item again.
func (s *Store) ReleasePublishClaim(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE items SET publish_claimed_at = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		s.timestamp(), id, ItemFetched,
	); err != nil {
		return fmt.Errorf("release publish claim: %w", err)
	}
	return nil
}

// ListItemsByStatus returns items in the given statuses ordered by creation.
// With no statuses every item is returned.
func (s *Store) ListItemsByStatus(ctx context.Context, statuses ...ItemStatus) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// CountItemsByStatus returns the number of items per status. Statuses with no
// items are present with a zero count.
func (s *Store) CountItemsByStatus(ctx context.Context) (map[ItemStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[ItemStatus]int, len(allItemStatuses))
	for _, status := range allItemStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ItemStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
