package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"likevault/internal/ipc"
	"likevault/internal/reddit"
	"likevault/internal/store"
)

func samplePosts() []reddit.Post {
	return []reddit.Post{
		{ID: "p1", Author: "gopher", Title: "Channels explained", Body: "buffered vs unbuffered", Subreddit: "golang"},
		{ID: "p2", Author: "[deleted]", Title: "Gone", Removed: true},
	}
}

func TestStartStopStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Processing resumed")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[OK] running")
	requireContains(t, out, "no fetch yet")
	requireContains(t, out, "Queue is empty")
	requireContains(t, out, "No items archived yet")

	out, _, err = runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Processing paused")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status ipc.StatusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if status.Running {
		t.Fatalf("expected paused daemon, got %+v", status.Status)
	}
	if status.Disk.Budget != env.cfg.DiskBudgetBytes() {
		t.Fatalf("unexpected disk budget %d", status.Disk.Budget)
	}
}

func TestFetchItemsAndStats(t *testing.T) {
	env := setupCLITestEnv(t, samplePosts()...)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, _, err := runCLI(t, []string{"fetch"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	requireContains(t, out, "Fetched 2 posts: 2 new")
	requireContains(t, out, "1 removed upstream")

	waitFor(t, 5*time.Second, func() bool {
		stats, err := env.store.Stats(t.Context(), store.PeriodAll)
		return err == nil && stats.PostsDelivered == 1 && stats.PostsSkipped == 1
	})

	out, _, err = runCLI(t, []string{"items", "--status", "uploaded"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "p1")
	requireContains(t, out, "r/golang")
	requireContains(t, out, "Channels explained")
	if strings.Contains(out, "p2") {
		t.Fatalf("filtered listing should not include p2:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"items", "--limit", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items --limit: %v", err)
	}
	requireContains(t, strings.ToLower(out), "1 of 2")

	out, _, err = runCLI(t, []string{"stats"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// go-pretty upper-cases headers by default.
	lower := strings.ToLower(out)
	requireContains(t, lower, "delivery statistics")
	requireContains(t, lower, "all time")
	requireContains(t, lower, "today")
	requireContains(t, out, "Posts delivered")

	out, _, err = runCLI(t, []string{"stats", "--period", "week", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stats --json: %v", err)
	}
	var stats store.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats json: %v\n%s", err, out)
	}
	if stats.Period != store.PeriodWeek || stats.PostsDelivered != 1 || stats.PostsSkipped != 1 {
		t.Fatalf("unexpected weekly stats %+v", stats)
	}

	if _, _, err := runCLI(t, []string{"stats", "--period", "decade"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown period to fail")
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "2 fetched, 2 new")
	requireContains(t, out, "uploaded")
	requireContains(t, out, "skipped_deleted")
}

func TestFetchWhilePausedFails(t *testing.T) {
	env := setupCLITestEnv(t, samplePosts()...)

	_, _, err := runCLI(t, []string{"fetch"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected fetch to fail while processing is paused")
	}
	requireContains(t, err.Error(), "fetch failed")
}

func TestTestNotifyWithoutChannel(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "no notification channel configured")
}

func TestCheckLocal(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check", "--local"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("check --local: %v\n%s", err, out)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "Data directory")
	if strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected failure:\n%s", out)
	}
}

func TestMissingSocketHint(t *testing.T) {
	env := setupCLITestEnv(t)

	missing := filepath.Join(env.baseDir, "missing.sock")
	_, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	requireContains(t, err.Error(), "likevault run")
}
