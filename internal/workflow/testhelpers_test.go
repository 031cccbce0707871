package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"likevault/internal/config"
	"likevault/internal/fetch"
	"likevault/internal/logging"
	"likevault/internal/quota"
	"likevault/internal/store"
	"likevault/internal/telegram"
	"likevault/internal/testsupport"
	"likevault/internal/workflow"
)

type stubDownloader struct {
	mu    sync.Mutex
	calls map[string]int
	sizes map[string]int64
	errs  map[string][]error
}

func newStubDownloader() *stubDownloader {
	return &stubDownloader{
		calls: make(map[string]int),
		sizes: make(map[string]int64),
		errs:  make(map[string][]error),
	}
}

func (d *stubDownloader) Download(_ context.Context, req fetch.Request) (fetch.Result, error) {
	d.mu.Lock()
	d.calls[req.URL]++
	var err error
	if queued := d.errs[req.URL]; len(queued) > 0 {
		err = queued[0]
		if len(queued) > 1 {
			d.errs[req.URL] = queued[1:]
		}
	}
	size, ok := d.sizes[req.URL]
	d.mu.Unlock()
	if err != nil {
		return fetch.Result{}, err
	}
	if !ok {
		size = 1024
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return fetch.Result{}, err
	}
	path := filepath.Join(req.Dir, req.Name+fetch.Extension(req.URL, req.Kind))
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Path: path, Size: size}, nil
}

func (d *stubDownloader) callCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[url]
}

func (d *stubDownloader) totalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

type stubDelivery struct {
	mu        sync.Mutex
	nextID    int
	batches   []telegram.Batch
	texts     []string
	mediaErrs []error
	textErrs  []error
	// partial, when set, delivers only the first file of a failing batch.
	partial bool
	panicOn string
	// onSend runs before each media batch is acknowledged.
	onSend func(telegram.Batch)
}

func (d *stubDelivery) SendMedia(_ context.Context, batch telegram.Batch) ([]telegram.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, batch)
	if d.onSend != nil {
		d.onSend(batch)
	}
	if len(d.mediaErrs) > 0 {
		err := d.mediaErrs[0]
		d.mediaErrs = d.mediaErrs[1:]
		if d.partial && len(batch.Files) > 0 {
			d.nextID++
			return []telegram.Receipt{{Ref: batch.Files[0].Ref, MessageID: d.nextID}}, err
		}
		return nil, err
	}
	receipts := make([]telegram.Receipt, 0, len(batch.Files))
	for _, file := range batch.Files {
		d.nextID++
		receipts = append(receipts, telegram.Receipt{Ref: file.Ref, MessageID: d.nextID})
	}
	return receipts, nil
}

func (d *stubDelivery) SendText(_ context.Context, text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panicOn != "" && text != "" && len(d.texts) == 0 && strings.Contains(text, d.panicOn) {
		d.panicOn = ""
		panic("delivery exploded")
	}
	d.texts = append(d.texts, text)
	if len(d.textErrs) > 0 {
		err := d.textErrs[0]
		d.textErrs = d.textErrs[1:]
		return 0, err
	}
	d.nextID++
	return d.nextID, nil
}

func (d *stubDelivery) ChatID() int64 { return -1001 }

func (d *stubDelivery) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func (d *stubDelivery) batchAt(i int) telegram.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches[i]
}

func (d *stubDelivery) textCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.texts)
}

type alertRecord struct {
	title   string
	message string
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []alertRecord
}

func (r *recordingAlerts) Alert(_ context.Context, title, message string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, alertRecord{title: title, message: message})
	r.mu.Unlock()
}

func (r *recordingAlerts) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.title
	}
	return out
}

type harness struct {
	cfg        *config.Config
	store      *store.Store
	guard      *quota.Guard
	downloader *stubDownloader
	delivery   *stubDelivery
	alerts     *recordingAlerts
	manager    *workflow.Manager
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithRetry(3, 2, 0.001), testsupport.WithWorkers(2)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.DequeueTimeoutSeconds = 1
	cfg.Workflow.ShutdownGraceSeconds = 2
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	guard, err := quota.New(st, quota.Limits{Budget: cfg.DiskBudgetBytes(), FileCap: cfg.FileCapBytes()})
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	h := &harness{
		cfg:        cfg,
		store:      st,
		guard:      guard,
		downloader: newStubDownloader(),
		delivery:   &stubDelivery{},
		alerts:     &recordingAlerts{},
	}
	h.manager = workflow.NewManager(cfg, st, workflow.Dependencies{
		Guard:      guard,
		Downloader: h.downloader,
		Delivery:   h.delivery,
		Alerts:     h.alerts,
	}, logging.NewNop(), workflow.WithSleeper(noSleep))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) waitForStatus(t *testing.T, id string, want store.ItemStatus) *store.Item {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		item, err := h.store.GetItem(context.Background(), id)
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if item != nil && item.Status == want {
			h.waitIdle(t, deadline)
			return item
		}
		if time.Now().After(deadline) {
			status := "<missing>"
			if item != nil {
				status = string(item.Status)
			}
			t.Fatalf("item %s status %s, want %s", id, status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitIdle waits for in-flight handlers to return, so cleanup and stats that
// follow a status transition are visible.
func (h *harness) waitIdle(t *testing.T, deadline time.Time) {
	t.Helper()
	for {
		status := h.manager.Status()
		if status.Active == 0 && status.QueueLength == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("manager still busy: %+v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) textItem(t *testing.T, id, body string) {
	t.Helper()
	if _, err := h.store.CreateItem(context.Background(), store.NewItem{
		ID:        id,
		Author:    "someone",
		Title:     "Title " + id,
		Body:      body,
		Permalink: "/r/golang/comments/" + id,
	}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
}

func mediaURL(n int) string {
	return fmt.Sprintf("https://i.redd.it/file%d.jpg", n)
}

var errFlaky = errors.New("connection reset")
