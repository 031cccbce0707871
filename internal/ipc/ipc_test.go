package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"likevault/internal/daemon"
	"likevault/internal/fetch"
	"likevault/internal/ingest"
	"likevault/internal/ipc"
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
	return fetch.Result{}, errors.New("not used")
}

type nopDelivery struct{}

func (nopDelivery) SendMedia(context.Context, telegram.Batch) ([]telegram.Receipt, error) {
	return nil, errors.New("not used")
}
func (nopDelivery) SendText(context.Context, string) (int, error) { return 1, nil }
func (nopDelivery) ChatID() int64                                 { return -1001 }

type staticSource struct{ posts []reddit.Post }

func (s staticSource) Upvoted(context.Context, int) ([]reddit.Post, error) { return s.posts, nil }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Paths.APIBind = ""
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	guard, err := quota.New(st, quota.Limits{Budget: cfg.DiskBudgetBytes(), FileCap: cfg.FileCapBytes()})
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	mgr := workflow.NewManager(cfg, st, workflow.Dependencies{Guard: guard, Downloader: nopDownloader{}, Delivery: nopDelivery{}}, logger)
	sched, err := ingest.New(cfg, st, staticSource{posts: []reddit.Post{
		{ID: "p1", Author: "a", Title: "First", Body: "text", Subreddit: "golang"},
		{ID: "p2", Author: "[deleted]", Title: "Gone", Removed: true},
	}}, mgr, nil, logger)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Dependencies{Store: st, Workflow: mgr, Ingest: sched, Usage: guard}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "likevault.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Workflow.Workers != 1 {
		t.Fatalf("unexpected status %+v", status.Status)
	}

	fetchResp, err := client.Fetch()
	if err != nil {
		t.Fatalf("Fetch RPC failed: %v", err)
	}
	if fetchResp.Error != "" || fetchResp.Pass.New != 2 || fetchResp.Pass.Deleted != 1 {
		t.Fatalf("unexpected fetch response %+v", fetchResp)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		items, err := client.Items([]string{"uploaded"}, 10)
		if err != nil {
			t.Fatalf("Items RPC failed: %v", err)
		}
		if items.Total == 1 {
			if items.Items[0].ID != "p1" || items.Items[0].Subreddit != "golang" {
				t.Fatalf("unexpected item %+v", items.Items[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("p1 was never uploaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := client.Items([]string{"bogus"}, 0); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	// Stats are appended right after the status transition.
	for {
		stats, err := client.Stats("all")
		if err != nil {
			t.Fatalf("Stats RPC failed: %v", err)
		}
		if stats.Stats.PostsDelivered == 1 && stats.Stats.PostsSkipped == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("unexpected stats %+v", stats.Stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := client.Stats("decade"); err == nil {
		t.Fatal("expected unknown period to fail")
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected no notification channel in tests")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to report stopped")
	}
	if got := status.Items[store.ItemUploaded]; got != 1 {
		t.Fatalf("expected one uploaded item, got %d", got)
	}
}
