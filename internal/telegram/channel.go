package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"likevault/internal/logging"
	"likevault/internal/store"
)

const (
	// MaxMediaGroup is the Bot API limit on files per media group.
	MaxMediaGroup = 10
	// MaxTextLength is the Bot API limit on message text.
	MaxTextLength = 4096
	// MaxCaptionLength is the Bot API limit on media captions.
	MaxCaptionLength = 1024
)

// kindOrder fixes the order in which homogeneous groups are sent.
var kindOrder = []store.MediaKind{store.KindVideo, store.KindGIF, store.KindImage, store.KindDocument}

// MediaFile is one local file to deliver.
type MediaFile struct {
	// Ref is an opaque caller reference echoed in the matching Receipt.
	Ref     int64
	Path    string
	Kind    store.MediaKind
	Caption string
}

// Batch is the set of files belonging to one post.
type Batch struct {
	Files []MediaFile
	// Caption replaces the caption of the last file of the last group.
	Caption string
}

// Receipt pairs a delivered file with its Telegram message id.
type Receipt struct {
	Ref       int64
	MessageID int
}

// Channel sends media and text into one chat.
type Channel struct {
	bot       Bot
	chatID    int64
	groupSize int
	textLimit int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// ChannelOption customizes a Channel.
type ChannelOption func(*Channel)

// WithGroupSize caps files per media group (2 to 10).
func WithGroupSize(size int) ChannelOption {
	return func(c *Channel) {
		if size >= 2 && size <= MaxMediaGroup {
			c.groupSize = size
		}
	}
}

// WithTextLimit sets the text split length.
func WithTextLimit(limit int) ChannelOption {
	return func(c *Channel) {
		if limit > 0 && limit <= MaxTextLength {
			c.textLimit = limit
		}
	}
}

// WithSendPause spaces consecutive sends by at least pause.
func WithSendPause(pause time.Duration) ChannelOption {
	return func(c *Channel) {
		if pause <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(pause), 1)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logging.NewComponentLogger(logger, "telegram")
	}
}

// NewChannel builds a delivery channel for chatID.
func NewChannel(bot Bot, chatID int64, opts ...ChannelOption) (*Channel, error) {
	if bot == nil {
		return nil, errors.New("telegram: bot is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: chat id is required")
	}
	c := &Channel{
		bot:       bot,
		chatID:    chatID,
		groupSize: MaxMediaGroup,
		textLimit: MaxTextLength,
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:    logging.NewComponentLogger(nil, "telegram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChatID returns the destination chat.
func (c *Channel) ChatID() int64 {
	return c.chatID
}

// SendMedia delivers batch and returns one receipt per file sent. On error
// the receipts of groups that were already delivered are still returned.
func (c *Channel) SendMedia(ctx context.Context, batch Batch) ([]Receipt, error) {
	if len(batch.Files) == 0 {
		return nil, nil
	}
	groups := c.plan(batch)
	receipts := make([]Receipt, 0, len(batch.Files))
	for _, group := range groups {
		if err := c.limiter.Wait(ctx); err != nil {
			return receipts, err
		}
		sent, err := c.sendGroup(group)
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, sent...)
	}
	c.logger.Debug("media delivered",
		logging.Int("files", len(receipts)),
		logging.Int("groups", len(groups)),
	)
	return receipts, nil
}

// plan orders files by kind, chunks them into groups and assigns captions.
func (c *Channel) plan(batch Batch) [][]MediaFile {
	byKind := make(map[store.MediaKind][]MediaFile, len(kindOrder))
	for _, file := range batch.Files {
		kind := deliveryKind(file)
		file.Kind = kind
		byKind[kind] = append(byKind[kind], file)
	}

	var groups [][]MediaFile
	for _, kind := range kindOrder {
		files := byKind[kind]
		for start := 0; start < len(files); start += c.groupSize {
			end := min(start+c.groupSize, len(files))
			group := make([]MediaFile, end-start)
			copy(group, files[start:end])
			groups = append(groups, group)
		}
	}

	for gi := range groups {
		for fi := range groups[gi] {
			file := &groups[gi][fi]
			if gi == len(groups)-1 && fi == len(groups[gi])-1 && batch.Caption != "" {
				file.Caption = batch.Caption
			}
			file.Caption = Truncate(file.Caption, MaxCaptionLength)
		}
	}
	return groups
}

func (c *Channel) sendGroup(group []MediaFile) ([]Receipt, error) {
	if len(group) == 1 {
		msg, err := c.bot.Send(singleConfig(c.chatID, group[0]))
		if err != nil {
			return nil, classify("send media", err)
		}
		return []Receipt{{Ref: group[0].Ref, MessageID: msg.MessageID}}, nil
	}

	media := make([]interface{}, 0, len(group))
	for _, file := range group {
		media = append(media, inputMedia(file))
	}
	messages, err := c.bot.SendMediaGroup(tgbotapi.NewMediaGroup(c.chatID, media))
	if err != nil {
		return nil, classify("send media group", err)
	}
	if len(messages) < len(group) {
		return nil, classify("send media group", fmt.Errorf("telegram returned %d messages for %d files", len(messages), len(group)))
	}
	receipts := make([]Receipt, len(group))
	for i, file := range group {
		receipts[i] = Receipt{Ref: file.Ref, MessageID: messages[i].MessageID}
	}
	return receipts, nil
}

func singleConfig(chatID int64, file MediaFile) tgbotapi.Chattable {
	data := tgbotapi.FilePath(file.Path)
	switch file.Kind {
	case store.KindImage:
		cfg := tgbotapi.NewPhoto(chatID, data)
		cfg.Caption = file.Caption
		return cfg
	case store.KindVideo, store.KindGIF:
		cfg := tgbotapi.NewVideo(chatID, data)
		cfg.Caption = file.Caption
		cfg.SupportsStreaming = true
		return cfg
	default:
		cfg := tgbotapi.NewDocument(chatID, data)
		cfg.Caption = file.Caption
		return cfg
	}
}

func inputMedia(file MediaFile) interface{} {
	data := tgbotapi.FilePath(file.Path)
	switch file.Kind {
	case store.KindImage:
		m := tgbotapi.NewInputMediaPhoto(data)
		m.Caption = file.Caption
		return m
	case store.KindVideo, store.KindGIF:
		m := tgbotapi.NewInputMediaVideo(data)
		m.Caption = file.Caption
		m.SupportsStreaming = true
		return m
	default:
		m := tgbotapi.NewInputMediaDocument(data)
		m.Caption = file.Caption
		return m
	}
}

// deliveryKind picks how a file is sent. A stored .gif is not a video
// Telegram can play, so it goes out as a document, which clients animate.
func deliveryKind(file MediaFile) store.MediaKind {
	switch file.Kind {
	case store.KindGIF:
		if strings.EqualFold(filepath.Ext(file.Path), ".gif") {
			return store.KindDocument
		}
		return file.Kind
	case store.KindImage, store.KindVideo:
		return file.Kind
	default:
		return store.KindDocument
	}
}

// SendText posts text, splitting it into parts of at most the text limit.
// It returns the message id of the first part.
func (c *Channel) SendText(ctx context.Context, text string) (int, error) {
	parts := SplitText(text, c.textLimit)
	if len(parts) == 0 {
		return 0, errors.New("telegram: empty text")
	}
	first := 0
	for i, part := range parts {
		if err := c.limiter.Wait(ctx); err != nil {
			return first, err
		}
		msg := tgbotapi.NewMessage(c.chatID, part)
		msg.DisableWebPagePreview = true
		sent, err := c.bot.Send(msg)
		if err != nil {
			return first, classify("send text", err)
		}
		if i == 0 {
			first = sent.MessageID
		}
	}
	return first, nil
}
