package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"likevault/internal/logging"
	"likevault/internal/services"
)

// UsageReader reports bytes currently held in local storage.
type UsageReader interface {
	DiskUsage(ctx context.Context) (int64, error)
}

// FreeSpaceFunc reports the bytes available to unprivileged users at path.
type FreeSpaceFunc func(path string) (int64, error)

// Decision explains an admission outcome.
type Decision string

const (
	DecisionAdmitted  Decision = "admitted"
	DecisionUnknown   Decision = "unknown_size"
	DecisionOverQuota Decision = "over_budget"
	DecisionLowDisk   Decision = "low_free_space"
	DecisionOversize  Decision = "oversize"
)

// Admitted reports whether the download may proceed.
func (d Decision) Admitted() bool {
	return d == DecisionAdmitted || d == DecisionUnknown
}

// Limits bounds local storage.
type Limits struct {
	Budget       int64
	FileCap      int64
	MinFreeSpace int64
	// Dir is statted for free space when MinFreeSpace is positive.
	Dir string
}

// Guard admits downloads against the disk budget.
type Guard struct {
	usage     UsageReader
	limits    Limits
	freeSpace FreeSpaceFunc
	logger    *slog.Logger

	mu       sync.Mutex
	reserved int64
}

// Option customizes a Guard.
type Option func(*Guard)

// WithFreeSpaceFunc replaces the statfs probe.
func WithFreeSpaceFunc(fn FreeSpaceFunc) Option {
	return func(g *Guard) {
		if fn != nil {
			g.freeSpace = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logging.NewComponentLogger(logger, "quota")
	}
}

// New constructs a guard over usage with the given limits.
func New(usage UsageReader, limits Limits, opts ...Option) (*Guard, error) {
	if usage == nil {
		return nil, errors.New("quota: usage reader is required")
	}
	if limits.Budget <= 0 {
		return nil, errors.New("quota: budget must be positive")
	}
	g := &Guard{
		usage:     usage,
		limits:    limits,
		freeSpace: StatfsFreeSpace,
		logger:    logging.NewComponentLogger(nil, "quota"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Reservation holds budget for one in-flight download. CheckActual resizes
// it to the real file size, so the bytes stay counted until Release.
type Reservation struct {
	guard    *Guard
	bytes    int64
	released bool
}

// Bytes returns the reserved amount.
func (r *Reservation) Bytes() int64 {
	if r == nil {
		return 0
	}
	if r.guard == nil {
		return r.bytes
	}
	r.guard.mu.Lock()
	defer r.guard.mu.Unlock()
	return r.bytes
}

// Release returns the reserved bytes to the budget. It is safe to call more than once.
func (r *Reservation) Release() {
	if r == nil || r.guard == nil {
		return
	}
	r.guard.mu.Lock()
	defer r.guard.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.guard.reserved -= r.bytes
	if r.guard.reserved < 0 {
		r.guard.reserved = 0
	}
}

// Admit decides whether a download of candidate bytes may start. A zero
// candidate is admitted without reserving budget; the caller must then
// enforce limits with CheckActual once the size is known. A declared size
// above the per-file cap is refused with DecisionOversize.
func (g *Guard) Admit(ctx context.Context, candidate int64) (*Reservation, Decision, error) {
	if candidate <= 0 {
		return &Reservation{guard: g}, DecisionUnknown, nil
	}
	if g.limits.FileCap > 0 && candidate > g.limits.FileCap {
		return nil, DecisionOversize, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	used, err := g.usage.DiskUsage(ctx)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "quota", "read usage", "disk counter unavailable", err)
	}
	if used+g.reserved+candidate > g.limits.Budget {
		g.logger.Debug("admission refused",
			logging.Int64("candidate_bytes", candidate),
			logging.Int64("used_bytes", used),
			logging.Int64("reserved_bytes", g.reserved),
			logging.Int64("budget_bytes", g.limits.Budget),
		)
		return nil, DecisionOverQuota, nil
	}
	if low, err := g.lowOnDisk(candidate); err != nil {
		g.logger.Debug("free space probe failed", logging.Error(err))
	} else if low {
		return nil, DecisionLowDisk, nil
	}

	g.reserved += candidate
	return &Reservation{guard: g, bytes: candidate}, DecisionAdmitted, nil
}

// CheckActual validates a finished download of size bytes. It returns an
// ErrOversize error when the file exceeds the per-file cap and an ErrCapacity
// error when keeping it would push usage past the budget. reservation is the
// budget already held for this download and is not counted twice; on success
// it is resized to size, so concurrent checks and admissions see the file
// until the caller records it in the store and releases the reservation.
func (g *Guard) CheckActual(ctx context.Context, size int64, reservation *Reservation) error {
	if g.limits.FileCap > 0 && size > g.limits.FileCap {
		return services.Wrap(services.ErrOversize, "quota", "check size",
			fmt.Sprintf("file is %d bytes, cap is %d", size, g.limits.FileCap), nil)
	}
	if size < 0 {
		size = 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	used, err := g.usage.DiskUsage(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "quota", "read usage", "disk counter unavailable", err)
	}
	held := int64(0)
	tracked := reservation != nil && reservation.guard == g && !reservation.released
	if tracked {
		held = reservation.bytes
	}
	others := g.reserved - held
	if others < 0 {
		others = 0
	}
	if used+others+size > g.limits.Budget {
		return services.Wrap(services.ErrCapacity, "quota", "check size",
			fmt.Sprintf("storing %d bytes would exceed budget of %d", size, g.limits.Budget), nil)
	}
	if tracked {
		g.reserved += size - held
		reservation.bytes = size
	}
	return nil
}

// Usage summarizes the guard state for status surfaces.
type Usage struct {
	Used     int64 `json:"used_bytes"`
	Reserved int64 `json:"reserved_bytes"`
	Budget   int64 `json:"budget_bytes"`
	FileCap  int64 `json:"file_cap_bytes"`
}

// Usage returns current usage against the budget.
func (g *Guard) Usage(ctx context.Context) (Usage, error) {
	used, err := g.usage.DiskUsage(ctx)
	if err != nil {
		return Usage{}, err
	}
	g.mu.Lock()
	reserved := g.reserved
	g.mu.Unlock()
	return Usage{Used: used, Reserved: reserved, Budget: g.limits.Budget, FileCap: g.limits.FileCap}, nil
}

func (g *Guard) lowOnDisk(candidate int64) (bool, error) {
	if g.limits.MinFreeSpace <= 0 || g.limits.Dir == "" || g.freeSpace == nil {
		return false, nil
	}
	free, err := g.freeSpace(g.limits.Dir)
	if err != nil {
		return false, err
	}
	return free-candidate < g.limits.MinFreeSpace, nil
}

// StatfsFreeSpace reports available bytes on the filesystem holding path.
func StatfsFreeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
