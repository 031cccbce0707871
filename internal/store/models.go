package store

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus represents the lifecycle of an archived item.
type ItemStatus string

const (
	ItemFetched             ItemStatus = "fetched"
	ItemUploaded            ItemStatus = "uploaded"
	ItemSkippedDeleted      ItemStatus = "skipped_deleted"
	ItemSkippedSizeExceeded ItemStatus = "skipped_size_exceeded"
	ItemSkippedEmpty        ItemStatus = "skipped_empty"
	ItemDownloadFailed      ItemStatus = "download_failed"
	ItemDeliveryFailed      ItemStatus = "delivery_failed"
)

var allItemStatuses = []ItemStatus{
	ItemFetched,
	ItemUploaded,
	ItemSkippedDeleted,
	ItemSkippedSizeExceeded,
	ItemSkippedEmpty,
	ItemDownloadFailed,
	ItemDeliveryFailed,
}

var itemStatusSet = func() map[ItemStatus]struct{} {
	set := make(map[ItemStatus]struct{}, len(allItemStatuses))
	for _, status := range allItemStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllItemStatuses returns every known item status in display order.
func AllItemStatuses() []ItemStatus {
	return append([]ItemStatus(nil), allItemStatuses...)
}

// ParseItemStatus validates a raw status string.
func ParseItemStatus(raw string) (ItemStatus, error) {
	status := ItemStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := itemStatusSet[status]; !ok {
		return "", fmt.Errorf("unknown item status %q", raw)
	}
	return status, nil
}

// Terminal reports whether no further transition is permitted from s.
func (s ItemStatus) Terminal() bool {
	_, known := itemStatusSet[s]
	return known && s != ItemFetched
}

// Skipped reports whether the status counts as a skip in statistics.
func (s ItemStatus) Skipped() bool {
	switch s {
	case ItemSkippedDeleted, ItemSkippedSizeExceeded, ItemSkippedEmpty:
		return true
	default:
		return false
	}
}

// Failed reports whether the status counts as a failure in statistics.
func (s ItemStatus) Failed() bool {
	return s == ItemDownloadFailed || s == ItemDeliveryFailed
}

// AttachmentStatus represents the lifecycle of one media payload.
type AttachmentStatus string

const (
	AttachmentPending          AttachmentStatus = "pending"
	AttachmentDeferredDiskFull AttachmentStatus = "deferred_disk_full"
	AttachmentDownloaded       AttachmentStatus = "downloaded"
	AttachmentUploaded         AttachmentStatus = "uploaded"
	AttachmentDeleted          AttachmentStatus = "deleted"
	AttachmentFailed           AttachmentStatus = "failed"
)

// attachmentTransitions lists, per target status, the statuses it may be reached from.
var attachmentTransitions = map[AttachmentStatus][]AttachmentStatus{
	AttachmentPending:          {AttachmentDeferredDiskFull},
	AttachmentDeferredDiskFull: {AttachmentPending},
	AttachmentDownloaded:       {AttachmentPending, AttachmentDeferredDiskFull},
	AttachmentUploaded:         {AttachmentDownloaded},
	AttachmentFailed:           {AttachmentPending, AttachmentDeferredDiskFull, AttachmentDownloaded},
	AttachmentDeleted:          {AttachmentDownloaded, AttachmentUploaded, AttachmentFailed},
}

// Concluded reports whether the attachment no longer needs download work.
func (s AttachmentStatus) Concluded() bool {
	switch s {
	case AttachmentPending, AttachmentDeferredDiskFull:
		return false
	default:
		return true
	}
}

// MediaKind classifies an attachment for delivery grouping.
type MediaKind string

const (
	KindImage    MediaKind = "image"
	KindVideo    MediaKind = "video"
	KindGIF      MediaKind = "gif"
	KindDocument MediaKind = "document"
)

// ParseMediaKind maps loose kind names onto a MediaKind, defaulting to document.
func ParseMediaKind(raw string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image", "photo":
		return KindImage
	case "video":
		return KindVideo
	case "gif", "animation":
		return KindGIF
	default:
		return KindDocument
	}
}

// Item is one archived Reddit post.
type Item struct {
	ID               string
	Author           string
	Title            string
	Body             string
	URL              string
	Permalink        string
	Subreddit        string
	Status           ItemStatus
	RetryCount       int
	ErrorMessage     string
	PublishClaimedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewItem describes an item to insert at status fetched.
type NewItem struct {
	ID        string
	Author    string
	Title     string
	Body      string
	URL       string
	Permalink string
	Subreddit string
}

// Attachment is one media payload belonging to an item.
type Attachment struct {
	ID           int64
	ItemID       string
	Position     int
	URL          string
	Kind         MediaKind
	Caption      string
	DeclaredSize int64
	Size         int64
	LocalPath    string
	MessageID    int
	Status       AttachmentStatus
	RetryCount   int
	FirstRetryAt *time.Time
	LastRetryAt  *time.Time
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAttachment describes an attachment to insert at status pending.
type NewAttachment struct {
	ItemID       string
	Position     int
	URL          string
	Kind         MediaKind
	Caption      string
	DeclaredSize int64
}

// MessageKind distinguishes media and text deliveries.
type MessageKind string

const (
	MessageMedia MessageKind = "media"
	MessageText  MessageKind = "text"
)

// Message records one Telegram message produced for an item.
type Message struct {
	MessageID int
	ItemID    string
	ChatID    int64
	Kind      MessageKind
	CreatedAt time.Time
}

// StatsDelta is one append-only statistics row.
type StatsDelta struct {
	PostsDelivered int64
	FilesDelivered int64
	BytesDelivered int64
	PostsFailed    int64
	PostsSkipped   int64
	TasksEnqueued  int64
	PostsSeen      int64
}

// IsZero reports whether recording d would add nothing.
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// Period selects a statistics window.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
	PeriodToday Period = "today"
)

// Periods lists every supported window in display order.
func Periods() []Period {
	return []Period{PeriodToday, PeriodWeek, PeriodMonth, PeriodAll}
}

// ParsePeriod validates a period name. Blank input selects PeriodAll.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodMonth, PeriodWeek, PeriodToday:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stats period %q (want all, month, week or today)", raw)
	}
}

// Window returns the look-back duration, zero meaning unbounded.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodToday:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Stats is the aggregate of every statistics row inside a window.
type Stats struct {
	Period         Period `json:"period"`
	PostsDelivered int64  `json:"posts_delivered"`
	FilesDelivered int64  `json:"files_delivered"`
	BytesDelivered int64  `json:"bytes_delivered"`
	PostsFailed    int64  `json:"posts_failed"`
	PostsSkipped   int64  `json:"posts_skipped"`
	TasksEnqueued  int64  `json:"tasks_enqueued"`
	PostsSeen      int64  `json:"posts_seen"`
}
