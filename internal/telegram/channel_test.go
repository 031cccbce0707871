package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"likevault/internal/services"
	"likevault/internal/store"
)

type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	sendErr  error
	groupErr error
	failAt   int
	calls    int
	times    []time.Time
}

func (f *fakeBot) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.times = append(f.times, time.Now())
	if f.sendErr != nil && (f.failAt == 0 || f.calls == f.failAt) {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.id()}, nil
}

func (f *fakeBot) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.groupErr != nil && (f.failAt == 0 || f.calls == f.failAt) {
		return nil, f.groupErr
	}
	f.groups = append(f.groups, c)
	out := make([]tgbotapi.Message, len(c.Media))
	for i := range out {
		out[i] = tgbotapi.Message{MessageID: f.id()}
	}
	return out, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func newTestChannel(t *testing.T, bot Bot, opts ...ChannelOption) *Channel {
	t.Helper()
	opts = append([]ChannelOption{WithSendPause(0)}, opts...)
	ch, err := NewChannel(bot, -100, opts...)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch
}

func captionOf(media interface{}) string {
	switch m := media.(type) {
	case tgbotapi.InputMediaPhoto:
		return m.Caption
	case tgbotapi.InputMediaVideo:
		return m.Caption
	case tgbotapi.InputMediaDocument:
		return m.Caption
	}
	return ""
}

func TestSendMediaGroupsTwoFiles(t *testing.T) {
	bot := &fakeBot{}
	ch := newTestChannel(t, bot)

	receipts, err := ch.SendMedia(context.Background(), Batch{
		Files: []MediaFile{
			{Ref: 1, Path: "/tmp/a.jpg", Kind: store.KindImage, Caption: "first"},
			{Ref: 2, Path: "/tmp/b.jpg", Kind: store.KindImage},
		},
		Caption: "post caption",
	})
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if len(bot.groups) != 1 || len(bot.groups[0].Media) != 2 {
		t.Fatalf("expected one group with two files, got %#v", bot.groups)
	}
	if captionOf(bot.groups[0].Media[0]) != "first" || captionOf(bot.groups[0].Media[1]) != "post caption" {
		t.Fatalf("unexpected captions %q / %q", captionOf(bot.groups[0].Media[0]), captionOf(bot.groups[0].Media[1]))
	}
	if len(receipts) != 2 || receipts[0].Ref != 1 || receipts[1].Ref != 2 || receipts[0].MessageID == receipts[1].MessageID {
		t.Fatalf("unexpected receipts %#v", receipts)
	}
}

func TestSendMediaGroupsByKindAndChunks(t *testing.T) {
	bot := &fakeBot{}
	ch := newTestChannel(t, bot, WithGroupSize(10))

	var files []MediaFile
	for i := 0; i < 12; i++ {
		files = append(files, MediaFile{Ref: int64(i + 1), Path: "/tmp/img", Kind: store.KindImage})
	}
	files = append(files, MediaFile{Ref: 100, Path: "/tmp/vid", Kind: store.KindVideo})
	files = append(files, MediaFile{Ref: 101, Path: "/tmp/vid2", Kind: store.KindGIF})

	receipts, err := ch.SendMedia(context.Background(), Batch{Files: files, Caption: "post"})
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if len(receipts) != 14 {
		t.Fatalf("expected 14 receipts, got %d", len(receipts))
	}
	// video (single), gif (single), images 10 + 2.
	if len(bot.sent) != 2 || len(bot.groups) != 2 {
		t.Fatalf("expected 2 single sends and 2 groups, got %d and %d", len(bot.sent), len(bot.groups))
	}
	if _, ok := bot.sent[0].(tgbotapi.VideoConfig); !ok {
		t.Fatalf("expected video first, got %T", bot.sent[0])
	}
	if receipts[0].Ref != 100 || receipts[1].Ref != 101 {
		t.Fatalf("expected video then gif receipts first, got %#v", receipts[:2])
	}
	if len(bot.groups[0].Media) != 10 || len(bot.groups[1].Media) != 2 {
		t.Fatalf("unexpected chunk sizes %d, %d", len(bot.groups[0].Media), len(bot.groups[1].Media))
	}
	last := bot.groups[1].Media[1]
	if captionOf(last) != "post" {
		t.Fatalf("expected post caption on last file, got %q", captionOf(last))
	}
	for _, m := range bot.groups[0].Media {
		if captionOf(m) != "" {
			t.Fatalf("unexpected caption in first group %q", captionOf(m))
		}
	}
	for _, group := range bot.groups {
		if len(group.Media) > MaxMediaGroup {
			t.Fatalf("group exceeds limit: %d", len(group.Media))
		}
	}
}

func TestStoredGIFSentAsDocument(t *testing.T) {
	bot := &fakeBot{}
	ch := newTestChannel(t, bot)

	receipts, err := ch.SendMedia(context.Background(), Batch{
		Files: []MediaFile{
			{Ref: 1, Path: "/tmp/1_1.gif", Kind: store.KindGIF},
			{Ref: 2, Path: "/tmp/1_2.mp4", Kind: store.KindGIF},
		},
	})
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if len(receipts) != 2 || len(bot.sent) != 2 {
		t.Fatalf("expected two single sends, got %d sends and %d receipts", len(bot.sent), len(receipts))
	}
	if _, ok := bot.sent[0].(tgbotapi.VideoConfig); !ok {
		t.Fatalf("expected the mp4 gif as video, got %T", bot.sent[0])
	}
	if _, ok := bot.sent[1].(tgbotapi.DocumentConfig); !ok {
		t.Fatalf("expected the .gif file as document, got %T", bot.sent[1])
	}
}

func TestSendMediaReturnsPartialReceipts(t *testing.T) {
	bot := &fakeBot{
		groupErr: &tgbotapi.Error{Code: 502, Message: "Bad Gateway"},
		failAt:   2,
	}
	ch := newTestChannel(t, bot, WithGroupSize(2))
	files := []MediaFile{
		{Ref: 1, Path: "a", Kind: store.KindImage},
		{Ref: 2, Path: "b", Kind: store.KindImage},
		{Ref: 3, Path: "c", Kind: store.KindImage},
		{Ref: 4, Path: "d", Kind: store.KindImage},
	}
	receipts, err := ch.SendMedia(context.Background(), Batch{Files: files})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(receipts) != 2 || receipts[1].Ref != 2 {
		t.Fatalf("expected receipts of first group, got %#v", receipts)
	}
}

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		err    error
		marker error
	}{
		{&tgbotapi.Error{Code: 400, Message: "Bad Request: wrong file"}, services.ErrValidation},
		{&tgbotapi.Error{Code: 401, Message: "Unauthorized"}, services.ErrConfiguration},
		{&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}, services.ErrTransient},
		{errors.New("connection reset"), services.ErrTransient},
	}
	for _, tc := range cases {
		if got := classify("send", tc.err); !errors.Is(got, tc.marker) {
			t.Errorf("classify(%v) = %v, want %v", tc.err, got, tc.marker)
		}
	}
}

func TestClassifyKeepsRetryAfter(t *testing.T) {
	limited := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}
	delay, ok := services.RetryAfter(classify("send", limited))
	if !ok || delay != 7*time.Second {
		t.Fatalf("RetryAfter = %v, %v; want 7s", delay, ok)
	}
	if _, ok := services.RetryAfter(classify("send", errors.New("connection reset"))); ok {
		t.Fatal("plain transport failures carry no retry hint")
	}
}

func TestCaptionTruncation(t *testing.T) {
	bot := &fakeBot{}
	ch := newTestChannel(t, bot)
	long := strings.Repeat("ж", 2000)
	_, err := ch.SendMedia(context.Background(), Batch{Files: []MediaFile{{Ref: 1, Path: "a", Kind: store.KindDocument, Caption: long}}})
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	doc, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	if !ok {
		t.Fatalf("expected document config, got %T", bot.sent[0])
	}
	if utf8.RuneCountInString(doc.Caption) != MaxCaptionLength || !strings.HasSuffix(doc.Caption, "...") {
		t.Fatalf("unexpected caption length %d", utf8.RuneCountInString(doc.Caption))
	}
}

func TestSendTextSplitsAndReturnsFirstID(t *testing.T) {
	bot := &fakeBot{}
	ch := newTestChannel(t, bot, WithSendPause(20*time.Millisecond))
	text := strings.Repeat("a", MaxTextLength) + strings.Repeat("b", 10)

	id, err := ch.SendText(context.Background(), text)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first message id 1, got %d", id)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected two parts, got %d", len(bot.sent))
	}
	first := bot.sent[0].(tgbotapi.MessageConfig)
	second := bot.sent[1].(tgbotapi.MessageConfig)
	if len(first.Text) != MaxTextLength || second.Text != strings.Repeat("b", 10) {
		t.Fatalf("unexpected split %d / %q", len(first.Text), second.Text)
	}
	if gap := bot.times[1].Sub(bot.times[0]); gap < 15*time.Millisecond {
		t.Fatalf("expected a pause between parts, got %v", gap)
	}
}

func TestSendTextRejectsBlank(t *testing.T) {
	ch := newTestChannel(t, &fakeBot{})
	if _, err := ch.SendText(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestSplitAndTruncate(t *testing.T) {
	parts := SplitText("héllo wörld", 4)
	if len(parts) != 3 || parts[0] != "héll" || parts[2] != "rld" {
		t.Fatalf("unexpected parts %q", parts)
	}
	if got := Truncate("abcdef", 5); got != "ab..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("Truncate short = %q", got)
	}
}

func TestSplitTextPrefersLineBreaks(t *testing.T) {
	text := "first line\nsecond\nthird line is long"
	parts := SplitText(text, 20)
	want := []string{"first line\nsecond\n", "third line is long"}
	if strings.Join(parts, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected parts %q", parts)
	}
	for _, part := range SplitText(strings.Repeat("ab\n", 50), 10) {
		if n := len([]rune(part)); n > 10 || !strings.HasSuffix(part, "\n") {
			t.Fatalf("part %q should end on a line break within the limit", part)
		}
	}
	if parts := SplitText("a\n\n\n\n\n\nb", 2); len(parts) != 2 || parts[0] != "a\n" || parts[1] != "\nb" {
		t.Fatalf("blank parts should be dropped, got %q", parts)
	}
}

func TestPostCaption(t *testing.T) {
	body := strings.Repeat("x", 1500)
	caption := PostCaption("Title", body, "https://reddit.com/r/a/comments/1")
	if !strings.HasPrefix(caption, "Title\n\n") || !strings.HasSuffix(caption, "🔗 Source: https://reddit.com/r/a/comments/1") {
		t.Fatalf("unexpected caption %q", caption[:20])
	}
	if !strings.Contains(caption, strings.Repeat("x", 997)+"...") || strings.Contains(caption, strings.Repeat("x", 998)) {
		t.Fatal("expected body truncated to 997 runes plus ellipsis")
	}
	if got := PostText("", "", "https://x"); got != "🔗 Source: https://x" {
		t.Fatalf("PostText = %q", got)
	}
}

func TestNewChannelValidates(t *testing.T) {
	if _, err := NewChannel(nil, 1); err == nil {
		t.Fatal("expected error without bot")
	}
	if _, err := NewChannel(&fakeBot{}, 0); err == nil {
		t.Fatal("expected error without chat id")
	}
}
