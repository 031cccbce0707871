package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"likevault/internal/config"
	"likevault/internal/fetch"
	"likevault/internal/ingest"
	"likevault/internal/logging"
	"likevault/internal/quota"
	"likevault/internal/reddit"
	"likevault/internal/store"
	"likevault/internal/telegram"
	"likevault/internal/testsupport"
	"likevault/internal/workflow"
)

type nopDownloader struct{}

func (nopDownloader) Download(context.Context, fetch.Request) (fetch.Result, error) {
	return fetch.Result{}, errors.New("downloads are not exercised here")
}

type textDelivery struct {
	mu    sync.Mutex
	texts []string
}

func (d *textDelivery) SendMedia(_ context.Context, batch telegram.Batch) ([]telegram.Receipt, error) {
	receipts := make([]telegram.Receipt, 0, len(batch.Files))
	for i, f := range batch.Files {
		receipts = append(receipts, telegram.Receipt{Ref: f.Ref, MessageID: 500 + i})
	}
	return receipts, nil
}

func (d *textDelivery) SendText(_ context.Context, text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return 100 + len(d.texts), nil
}

func (d *textDelivery) ChatID() int64 { return -1001 }

type countingSource struct {
	mu    sync.Mutex
	calls int
	posts []reddit.Post
}

func (s *countingSource) Upvoted(context.Context, int) ([]reddit.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.posts, nil
}

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	source   *countingSource
	delivery *textDelivery
	daemon   *Daemon
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Paths.APIToken = "s3cret"
	cfg.Workflow.DequeueTimeoutSeconds = 1
	return buildFixture(t, cfg, testsupport.MustOpenStore(t, cfg))
}

func buildFixture(t *testing.T, cfg *config.Config, st *store.Store) *fixture {
	t.Helper()
	logger := logging.NewNop()
	guard, err := quota.New(st, quota.Limits{Budget: cfg.DiskBudgetBytes(), FileCap: cfg.FileCapBytes()})
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	delivery := &textDelivery{}
	mgr := workflow.NewManager(cfg, st, workflow.Dependencies{
		Guard:      guard,
		Downloader: nopDownloader{},
		Delivery:   delivery,
	}, logger)
	source := &countingSource{posts: []reddit.Post{{ID: "abc", Author: "someone", Title: "Hello", Body: "world"}}}
	sched, err := ingest.New(cfg, st, source, mgr, nil, logger)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	d, err := New(cfg, Dependencies{Store: st, Workflow: mgr, Ingest: sched, Usage: guard}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return &fixture{cfg: cfg, store: st, source: source, delivery: delivery, daemon: d}
}

func waitForItem(t *testing.T, st *store.Store, id string, want store.ItemStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, err := st.GetItem(context.Background(), id)
		if err == nil && item != nil && item.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item %s never reached %s", id, want)
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err := f.daemon.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || !status.Workflow.Running || status.StartedAt.IsZero() {
		t.Fatalf("expected running status, got %+v", status)
	}
	if status.Disk.Budget != f.cfg.DiskBudgetBytes() {
		t.Fatalf("unexpected disk budget %d", status.Disk.Budget)
	}

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	status, _ = f.daemon.Status(ctx)
	if status.Running || status.Workflow.Running {
		t.Fatal("expected daemon to be stopped")
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	other := buildFixture(t, f.cfg, f.store)
	err := other.daemon.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
	if other.daemon.deps.Workflow.Status().Running {
		t.Fatal("rejected instance must not start workers")
	}
}

func TestDaemonResumesFetchedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateItem(ctx, store.NewItem{ID: "left", Author: "a", Title: "Leftover", Body: "from last run"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForItem(t, f.store, "left", store.ItemUploaded)
}

func TestDaemonFetchNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.daemon.FetchNow(ctx); err == nil {
		t.Fatal("expected FetchNow to require a running daemon")
	}
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := f.daemon.FetchNow(ctx)
	if err != nil {
		t.Fatalf("FetchNow: %v", err)
	}
	if result.New != 1 || result.Enqueued != 1 {
		t.Fatalf("unexpected pass %+v", result)
	}
	waitForItem(t, f.store, "abc", store.ItemUploaded)

	summary, err := f.daemon.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !summary.Running || summary.LastFetch.IsZero() || summary.Workers != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestDaemonTestNotificationWithoutChannel(t *testing.T) {
	f := newFixture(t)
	sent, message, err := f.daemon.TestNotification(context.Background())
	if sent || err != nil || !strings.Contains(message, "no notification") {
		t.Fatalf("unexpected result %v %q %v", sent, message, err)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + f.daemon.api.addr()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	var status Status
	if code := getJSON(t, base+"/api/status", "s3cret", &status); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !status.Running || status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected status payload %+v", status)
	}
}

func TestAPIServerStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.RecordStats(ctx, store.StatsDelta{PostsDelivered: 2, FilesDelivered: 5}); err != nil {
		t.Fatalf("RecordStats: %v", err)
	}
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + f.daemon.api.addr()

	var stats store.Stats
	if code := getJSON(t, base+"/api/stats?period=week", "s3cret", &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if stats.Period != store.PeriodWeek || stats.PostsDelivered != 2 || stats.FilesDelivered != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var errBody map[string]string
	if code := getJSON(t, base+"/api/stats?period=decade", "s3cret", &errBody); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", code)
	}
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}
