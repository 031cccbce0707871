package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"likevault/internal/config"
	"likevault/internal/logging"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &mu
}

func TestNtfySendsHeaders(t *testing.T) {
	srv, got, _ := newNtfyServer(t, http.StatusOK)
	svc := NewNtfy(srv.URL, time.Second)

	err := svc.Send(context.Background(), Notification{
		Title:    "Download failed",
		Message:  "post abc123 exhausted retries",
		Tags:     []string{"warning", "download"},
		Priority: PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*got))
	}
	req := (*got)[0]
	if req.title != "Download failed" || req.tags != "warning,download" || req.priority != "high" {
		t.Fatalf("unexpected headers: %+v", req)
	}
	if req.body != "post abc123 exhausted retries" {
		t.Fatalf("unexpected body %q", req.body)
	}
}

func TestNtfyOmitsDefaultPriority(t *testing.T) {
	srv, got, _ := newNtfyServer(t, http.StatusOK)
	svc := NewNtfy(srv.URL, time.Second)
	if err := svc.Send(context.Background(), Notification{Message: "hi", Priority: PriorityDefault}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p := (*got)[0].priority; p != "" {
		t.Fatalf("expected no priority header, got %q", p)
	}
}

func TestNtfyReportsHTTPFailure(t *testing.T) {
	srv, _, _ := newNtfyServer(t, http.StatusBadGateway)
	err := NewNtfy(srv.URL, time.Second).Send(context.Background(), Notification{Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected status error with body excerpt, got %v", err)
	}
}

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) SendMediaGroup(tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	return nil, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestTelegramAdminSendsEscapedHTML(t *testing.T) {
	bot := &fakeBot{}
	svc := NewTelegramAdmin(bot, 42)
	if err := svc.Send(context.Background(), Notification{Title: "Disk <full>", Message: "a & b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := bot.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("unexpected message config: chat=%d mode=%q", msg.ChatID, msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "<b>Disk &lt;full&gt;</b>") || !strings.Contains(msg.Text, "a &amp; b") {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}

func TestNewServiceSelection(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	cfg.Notifications.TelegramAdmin = false
	if svc := NewService(&cfg, nil); !IsNoop(svc) {
		t.Fatalf("expected noop service, got %T", svc)
	}

	cfg.Notifications.TelegramAdmin = true
	cfg.Telegram.AdminID = 42
	if svc := NewService(&cfg, &fakeBot{}); IsNoop(svc) {
		t.Fatal("expected telegram admin service")
	}

	srv, got, _ := newNtfyServer(t, http.StatusOK)
	cfg.Notifications.NtfyTopic = srv.URL
	bot := &fakeBot{}
	if err := NewService(&cfg, bot).Send(context.Background(), Notification{Title: "t", Message: "m"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*got) != 1 || len(bot.messages()) != 1 {
		t.Fatalf("expected fan-out to both services, ntfy=%d telegram=%d", len(*got), len(bot.messages()))
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	first := &fakeBot{err: errors.New("first down")}
	second := &fakeBot{err: errors.New("second down")}
	err := Multi(NewTelegramAdmin(first, 1), NewTelegramAdmin(second, 2)).Send(context.Background(), Notification{Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "first down") || !strings.Contains(err.Error(), "second down") {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

type blockingService struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Notification
}

func (b *blockingService) Send(_ context.Context, n Notification) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, n)
	b.mu.Unlock()
	return nil
}

func TestSinkDropsWhenFullAndDrainsOnClose(t *testing.T) {
	svc := &blockingService{release: make(chan struct{})}
	sink := NewSink(svc, 1, logging.NewNop())

	// First alert is picked up by the worker and blocks; the second fills
	// the queue; the third has nowhere to go.
	sink.Alert(context.Background(), "one", "1")
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sink.Alert(context.Background(), "two", "2")
	sink.Alert(context.Background(), "three", "3")

	if sink.Dropped() != 1 {
		t.Fatalf("expected 1 dropped alert, got %d", sink.Dropped())
	}

	close(svc.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.Sent() != 2 {
		t.Fatalf("expected 2 delivered alerts, got %d", sink.Sent())
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.got[0].Title != "one" || svc.got[1].Title != "two" || svc.got[0].Priority != PriorityHigh {
		t.Fatalf("unexpected delivery order: %+v", svc.got)
	}

	// Alerts after Close are ignored rather than panicking on a closed channel.
	sink.Alert(context.Background(), "late", "x")
}

func TestSinkSurvivesFailingService(t *testing.T) {
	sink := NewSink(NewTelegramAdmin(&fakeBot{err: errors.New("down")}, 1), 4, logging.NewNop())
	sink.Alert(context.Background(), "t", "m")
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.Sent() != 0 {
		t.Fatalf("expected no successful sends, got %d", sink.Sent())
	}
}
