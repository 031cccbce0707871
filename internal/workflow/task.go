package workflow

import "fmt"

// Kind names a task variant.
type Kind string

const (
	KindDownload Kind = "download"
	KindPublish  Kind = "publish"
	KindText     Kind = "text"
)

// Kinds lists every task kind in dispatch order.
func Kinds() []Kind {
	return []Kind{KindDownload, KindPublish, KindText}
}

// Task is one unit of queued work. The set of implementations is closed.
type Task interface {
	Kind() Kind
	// Item returns the source identifier of the owning item.
	Item() string
	String() string
	sealed()
}

// Download fetches one attachment to local storage.
type Download struct {
	ItemID       string
	AttachmentID int64
	// Deferrals counts disk-budget rejections of this task.
	Deferrals int
}

// Publish delivers the downloaded attachments of an item as one post.
type Publish struct {
	ItemID        string
	AttachmentIDs []int64
}

// TextOnly delivers an item without media as a text message.
type TextOnly struct {
	ItemID string
}

func (Download) Kind() Kind { return KindDownload }
func (Publish) Kind() Kind  { return KindPublish }
func (TextOnly) Kind() Kind { return KindText }

func (t Download) Item() string { return t.ItemID }
func (t Publish) Item() string  { return t.ItemID }
func (t TextOnly) Item() string { return t.ItemID }

func (t Download) String() string {
	return fmt.Sprintf("download %s/%d", t.ItemID, t.AttachmentID)
}

func (t Publish) String() string {
	return fmt.Sprintf("publish %s (%d files)", t.ItemID, len(t.AttachmentIDs))
}

func (t TextOnly) String() string {
	return "text " + t.ItemID
}

func (Download) sealed() {}
func (Publish) sealed()  {}
func (TextOnly) sealed() {}
