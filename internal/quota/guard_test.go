package quota_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"likevault/internal/quota"
	"likevault/internal/services"
	"likevault/internal/testsupport"
)

type fakeUsage struct {
	used atomic.Int64
	err  error
}

func (f *fakeUsage) DiskUsage(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.used.Load(), nil
}

func newGuard(t *testing.T, usage quota.UsageReader, limits quota.Limits, opts ...quota.Option) *quota.Guard {
	t.Helper()
	g, err := quota.New(usage, limits, opts...)
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	return g
}

func TestAdmitAgainstBudget(t *testing.T) {
	usage := &fakeUsage{}
	usage.used.Store(700)
	g := newGuard(t, usage, quota.Limits{Budget: 1000, FileCap: 900})
	ctx := context.Background()

	res, decision, err := g.Admit(ctx, 300)
	if err != nil || decision != quota.DecisionAdmitted {
		t.Fatalf("expected admission at exact budget, got %s, %v", decision, err)
	}
	if _, decision, _ := g.Admit(ctx, 1); decision != quota.DecisionOverQuota {
		t.Fatalf("expected reservation to count against budget, got %s", decision)
	}
	res.Release()
	res.Release()
	if _, decision, _ := g.Admit(ctx, 1); decision != quota.DecisionAdmitted {
		t.Fatalf("expected admission after release, got %s", decision)
	}
}

func TestAdmitUnknownSizeBypasses(t *testing.T) {
	usage := &fakeUsage{}
	usage.used.Store(5000)
	g := newGuard(t, usage, quota.Limits{Budget: 1000})

	res, decision, err := g.Admit(context.Background(), 0)
	if err != nil || !decision.Admitted() || decision != quota.DecisionUnknown {
		t.Fatalf("unknown size should bypass the guard, got %s, %v", decision, err)
	}
	if res.Bytes() != 0 {
		t.Fatalf("expected empty reservation, got %d", res.Bytes())
	}
}

func TestAdmitDeclaredOversize(t *testing.T) {
	g := newGuard(t, &fakeUsage{}, quota.Limits{Budget: 1000, FileCap: 100})
	if _, decision, _ := g.Admit(context.Background(), 101); decision != quota.DecisionOversize {
		t.Fatalf("expected oversize, got %s", decision)
	}
}

func TestConcurrentAdmissionsNeverExceedBudget(t *testing.T) {
	usage := &fakeUsage{}
	g := newGuard(t, usage, quota.Limits{Budget: 1000})

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, decision, err := g.Admit(context.Background(), 100)
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			if decision == quota.DecisionAdmitted {
				admitted.Add(100)
			}
		}()
	}
	wg.Wait()
	if admitted.Load() != 1000 {
		t.Fatalf("expected exactly the budget to be admitted, got %d", admitted.Load())
	}
	snapshot, err := g.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snapshot.Reserved != 1000 || snapshot.Budget != 1000 {
		t.Fatalf("unexpected usage %#v", snapshot)
	}
}

func TestCheckActual(t *testing.T) {
	usage := &fakeUsage{}
	usage.used.Store(600)
	g := newGuard(t, usage, quota.Limits{Budget: 1000, FileCap: 500})
	ctx := context.Background()

	if err := g.CheckActual(ctx, 501, nil); !errors.Is(err, services.ErrOversize) {
		t.Fatalf("expected oversize, got %v", err)
	}
	if err := g.CheckActual(ctx, 450, nil); !errors.Is(err, services.ErrCapacity) {
		t.Fatalf("expected capacity, got %v", err)
	}
	res, _, _ := g.Admit(ctx, 300)
	if err := g.CheckActual(ctx, 350, res); err != nil {
		t.Fatalf("own reservation should not count twice: %v", err)
	}
	if services.Retryable(g.CheckActual(ctx, 501, res)) {
		t.Fatal("oversize must not be retryable")
	}
}

func TestCheckActualReservesUnknownSizes(t *testing.T) {
	usage := &fakeUsage{}
	usage.used.Store(600)
	g := newGuard(t, usage, quota.Limits{Budget: 1000})
	ctx := context.Background()

	first, _, _ := g.Admit(ctx, 0)
	second, _, _ := g.Admit(ctx, 0)

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for _, res := range []*quota.Reservation{first, second} {
		wg.Add(1)
		go func(res *quota.Reservation) {
			defer wg.Done()
			if err := g.CheckActual(ctx, 300, res); err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, services.ErrCapacity) {
				t.Errorf("unexpected error %v", err)
			}
		}(res)
	}
	wg.Wait()
	if got := accepted.Load(); got != 1 {
		t.Fatalf("expected exactly one of two 300 byte files to fit, got %d", got)
	}

	usage.used.Add(300)
	first.Release()
	second.Release()
	if u, _ := g.Usage(ctx); u.Reserved != 0 {
		t.Fatalf("expected reservations to be returned, got %d", u.Reserved)
	}
}

func TestCheckActualResizesUnderDeclaredReservation(t *testing.T) {
	usage := &fakeUsage{}
	usage.used.Store(500)
	g := newGuard(t, usage, quota.Limits{Budget: 1000})
	ctx := context.Background()

	res, decision, _ := g.Admit(ctx, 100)
	if decision != quota.DecisionAdmitted {
		t.Fatalf("expected admission, got %s", decision)
	}
	if err := g.CheckActual(ctx, 400, res); err != nil {
		t.Fatalf("CheckActual: %v", err)
	}
	if res.Bytes() != 400 {
		t.Fatalf("expected reservation to grow to 400, got %d", res.Bytes())
	}
	if _, decision, _ := g.Admit(ctx, 350); decision != quota.DecisionOverQuota {
		t.Fatalf("resized reservation must count against later admissions, got %s", decision)
	}
	if _, decision, _ := g.Admit(ctx, 100); decision != quota.DecisionAdmitted {
		t.Fatalf("expected room for 100 more bytes, got %s", decision)
	}

	res.Release()
	res.Release()
	if u, _ := g.Usage(ctx); u.Reserved != 100 {
		t.Fatalf("expected only the last admission to stay reserved, got %d", u.Reserved)
	}
}

func TestLowFreeSpaceRefusesAdmission(t *testing.T) {
	dir := t.TempDir()
	g := newGuard(t, &fakeUsage{}, quota.Limits{Budget: 1 << 30, MinFreeSpace: 100, Dir: dir},
		quota.WithFreeSpaceFunc(func(path string) (int64, error) {
			if path != dir {
				t.Errorf("unexpected probe path %q", path)
			}
			return 150, nil
		}))
	if _, decision, _ := g.Admit(context.Background(), 60); decision != quota.DecisionLowDisk {
		t.Fatalf("expected low disk decision, got %s", decision)
	}
	if _, decision, _ := g.Admit(context.Background(), 40); decision != quota.DecisionAdmitted {
		t.Fatalf("expected admission with enough headroom, got %s", decision)
	}
}

func TestUsageReaderErrorsAreTransient(t *testing.T) {
	g := newGuard(t, &fakeUsage{err: errors.New("db closed")}, quota.Limits{Budget: 10})
	_, _, err := g.Admit(context.Background(), 5)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGuardOverStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.AdjustDiskUsage(context.Background(), 900); err != nil {
		t.Fatalf("AdjustDiskUsage: %v", err)
	}
	g := newGuard(t, st, quota.Limits{Budget: 1000})
	if _, decision, _ := g.Admit(context.Background(), 101); decision != quota.DecisionOverQuota {
		t.Fatalf("expected store usage to be honoured, got %s", decision)
	}
}

func TestStatfsFreeSpace(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, dir+"/probe", 10)
	free, err := quota.StatfsFreeSpace(dir)
	if err != nil {
		t.Fatalf("StatfsFreeSpace: %v", err)
	}
	if free <= 0 {
		t.Fatalf("expected positive free space, got %d", free)
	}
	if _, err := quota.StatfsFreeSpace(dir + "/missing/dir"); err == nil {
		t.Fatal("expected error for missing path")
	}
	_ = os.Remove(dir + "/probe")
}

func TestNewValidates(t *testing.T) {
	if _, err := quota.New(nil, quota.Limits{Budget: 1}); err == nil {
		t.Fatal("expected error without reader")
	}
	if _, err := quota.New(&fakeUsage{}, quota.Limits{}); err == nil {
		t.Fatal("expected error without budget")
	}
}
