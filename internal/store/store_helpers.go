package store

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const itemColumns = "id, author, title, body, url, permalink, subreddit, status, retry_count, error_message, publish_claimed_at, created_at, updated_at"

const attachmentColumns = "id, item_id, position, url, kind, caption, declared_size, size, local_path, message_id, status, retry_count, first_retry_at, last_retry_at, error_message, created_at, updated_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		id           string
		author       sql.NullString
		title        sql.NullString
		body         sql.NullString
		link         sql.NullString
		permalink    sql.NullString
		subreddit    sql.NullString
		statusStr    string
		retryCount   sql.NullInt64
		errorMessage sql.NullString
		claimedRaw   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&author,
		&title,
		&body,
		&link,
		&permalink,
		&subreddit,
		&statusStr,
		&retryCount,
		&errorMessage,
		&claimedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:               id,
		Author:           author.String,
		Title:            title.String,
		Body:             body.String,
		URL:              link.String,
		Permalink:        permalink.String,
		Subreddit:        subreddit.String,
		Status:           ItemStatus(statusStr),
		RetryCount:       int(retryCount.Int64),
		ErrorMessage:     errorMessage.String,
		PublishClaimedAt: parseNullableTime(claimedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanAttachment(scanner rowScanner) (*Attachment, error) {
	var (
		att          Attachment
		kind         string
		caption      sql.NullString
		localPath    sql.NullString
		messageID    sql.NullInt64
		statusStr    string
		firstRetry   sql.NullString
		lastRetry    sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&att.ID,
		&att.ItemID,
		&att.Position,
		&att.URL,
		&kind,
		&caption,
		&att.DeclaredSize,
		&att.Size,
		&localPath,
		&messageID,
		&statusStr,
		&att.RetryCount,
		&firstRetry,
		&lastRetry,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	att.Kind = MediaKind(kind)
	att.Caption = caption.String
	att.LocalPath = localPath.String
	att.MessageID = int(messageID.Int64)
	att.Status = AttachmentStatus(statusStr)
	att.FirstRetryAt = parseNullableTime(firstRetry)
	att.LastRetryAt = parseNullableTime(lastRetry)
	att.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		att.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		att.UpdatedAt = updated
	}
	return &att, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func rowsAffected(res sql.Result) (int64, error) {
	if res == nil {
		return 0, nil
	}
	return res.RowsAffected()
}
