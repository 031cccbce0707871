package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateAttachment inserts a pending attachment for an existing item.
func (s *Store) CreateAttachment(ctx context.Context, att NewAttachment) (*Attachment, error) {
	if strings.TrimSpace(att.URL) == "" {
		return nil, errors.New("create attachment: url is required")
	}
	kind := att.Kind
	if kind == "" {
		kind = KindDocument
	}
	timestamp := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO attachments (
            item_id, position, url, kind, caption, declared_size, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ItemID,
		att.Position,
		att.URL,
		kind,
		nullableString(att.Caption),
		max(att.DeclaredSize, 0),
		AttachmentPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAttachment(ctx, id)
}

// GetAttachment fetches an attachment by identifier. It returns nil when unknown.
func (s *Store) GetAttachment(ctx context.Context, id int64) (*Attachment, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	att, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return att, nil
}

// ListAttachments returns every attachment of an item in source order.
func (s *Store) ListAttachments(ctx context.Context, itemID string) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+attachmentColumns+` FROM attachments WHERE item_id = ? ORDER BY position, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

// TransitionAttachment moves an attachment to status to when the current
// status permits it, recording errorMessage when non-empty.
func (s *Store) TransitionAttachment(ctx context.Context, id int64, to AttachmentStatus, errorMessage string) error {
	from, ok := attachmentTransitions[to]
	if !ok {
		return fmt.Errorf("%w: attachment %d cannot move to %q", ErrInvalidTransition, id, to)
	}
	args := []any{to, nullableString(errorMessage), s.timestamp(), id}
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE attachments SET status = ?, error_message = COALESCE(?, error_message), updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("transition attachment: %w", err)
	}
	return s.checkAttachmentUpdate(ctx, res, id, to)
}

// MarkAttachmentDownloaded records the stored file and adds its size to the
// disk counter in one transaction.
func (s *Store) MarkAttachmentDownloaded(ctx context.Context, id int64, path string, size int64) error {
	ctx = ensureContext(ctx)
	if size < 0 {
		size = 0
	}
	from := attachmentTransitions[AttachmentDownloaded]
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{AttachmentDownloaded, path, size, now, id}
		for _, status := range from {
			args = append(args, status)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE attachments SET status = ?, local_path = ?, size = ?, error_message = NULL, updated_at = ?
             WHERE id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
			args...,
		)
		if err != nil {
			return err
		}
		if affected, _ := rowsAffected(res); affected != 1 {
			return errNoRowsChanged
		}
		return adjustDiskUsageTx(ctx, tx, size, now)
	})
	if errors.Is(err, errNoRowsChanged) {
		return s.describeAttachmentMiss(ctx, id, AttachmentDownloaded)
	}
	if err != nil {
		return fmt.Errorf("mark attachment downloaded: %w", err)
	}
	return nil
}

// MarkAttachmentUploaded records the Telegram message that carries the attachment.
func (s *Store) MarkAttachmentUploaded(ctx context.Context, id int64, messageID int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE attachments SET status = ?, message_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		AttachmentUploaded, messageID, s.timestamp(), id, AttachmentDownloaded,
	)
	if err != nil {
		return fmt.Errorf("mark attachment uploaded: %w", err)
	}
	return s.checkAttachmentUpdate(ctx, res, id, AttachmentUploaded)
}

// MarkAttachmentDeleted flags the local file as removed and subtracts its
// recorded size from the disk counter. It returns the size released.
func (s *Store) MarkAttachmentDeleted(ctx context.Context, id int64) (int64, error) {
	ctx = ensureContext(ctx)
	from := attachmentTransitions[AttachmentDeleted]
	now := s.timestamp()
	var released int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status    string
			size      int64
			localPath sql.NullString
		)
		if err := tx.QueryRowContext(ctx, `SELECT status, size, local_path FROM attachments WHERE id = ?`, id).
			Scan(&status, &size, &localPath); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNoRowsChanged
			}
			return err
		}
		if !containsStatus(from, AttachmentStatus(status)) || !localPath.Valid {
			return errNoRowsChanged
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE attachments SET status = ?, updated_at = ? WHERE id = ?`,
			AttachmentDeleted, now, id,
		); err != nil {
			return err
		}
		released = size
		return adjustDiskUsageTx(ctx, tx, -size, now)
	})
	if errors.Is(err, errNoRowsChanged) {
		return 0, s.describeAttachmentMiss(ctx, id, AttachmentDeleted)
	}
	if err != nil {
		return 0, fmt.Errorf("mark attachment deleted: %w", err)
	}
	return released, nil
}

// RecordAttachmentRetry increments the retry counter and stamps the retry
// timestamps. The first-retry stamp is written once.
func (s *Store) RecordAttachmentRetry(ctx context.Context, id int64, errorMessage string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE attachments SET retry_count = retry_count + 1,
            first_retry_at = COALESCE(first_retry_at, ?),
            last_retry_at = ?,
            error_message = COALESCE(?, error_message),
            updated_at = ?
         WHERE id = ?`,
		now, now, nullableString(errorMessage), now, id,
	)
	if err != nil {
		return fmt.Errorf("record attachment retry: %w", err)
	}
	if affected, _ := rowsAffected(res); affected == 0 {
		return fmt.Errorf("%w: attachment %d", ErrNotFound, id)
	}
	return nil
}

var errNoRowsChanged = errors.New("no rows changed")

func (s *Store) checkAttachmentUpdate(ctx context.Context, res sql.Result, id int64, to AttachmentStatus) error {
	affected, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("attachment rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	return s.describeAttachmentMiss(ctx, id, to)
}

func (s *Store) describeAttachmentMiss(ctx context.Context, id int64, to AttachmentStatus) error {
	current, err := s.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: attachment %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: attachment %d is %s, cannot move to %s", ErrInvalidTransition, id, current.Status, to)
}

func containsStatus(set []AttachmentStatus, status AttachmentStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
