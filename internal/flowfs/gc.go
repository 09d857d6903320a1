package flowfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/moleksy/mxl/pkg/mxltime"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// GCOptions configures SweepStale. It is opt-in infrastructure: nothing in
// core flow creation, opening or deletion depends on it running.
type GCOptions struct {
	// StaleAfter is how long a flow may go untouched (per its access marker)
	// before it becomes eligible for collection. Zero disables the age check
	// (every flow is age-eligible).
	StaleAfter time.Duration
	// Concurrency bounds how many flows are inspected at once.
	Concurrency int
	// RatePerSecond caps how many flows SweepStale considers per second,
	// smoothing the syscall load a large domain sweep would otherwise burst.
	RatePerSecond float64
	Logger        *slog.Logger
}

func (o *GCOptions) setDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 50
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// SweepStale scans domain for flows whose recorded writer process has
// exited and whose access marker has not been touched within StaleAfter,
// and deletes them. It is a diagnostic and reclamation aid, not part of the
// read/write contract: a flow with no live writer is not itself invalid,
// only a candidate for reclamation once nothing has touched it in a while.
func SweepStale(ctx context.Context, domain string, opts GCOptions) (deleted []string, scanned int, err error) {
	opts.setDefaults()

	m, err := NewManager(domain, opts.Logger)
	if err != nil {
		return nil, 0, err
	}
	ids, err := m.ListFlows()
	if err != nil {
		return nil, 0, err
	}
	scanned = len(ids)

	limiter := rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)

	results := make(chan string, len(ids))
	for _, id := range ids {
		id := id
		group.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			stale, dir, err := isStale(m, id, opts.StaleAfter)
			if err != nil {
				opts.Logger.Warn("gc: inspect flow failed", "id", id, "error", err)
				return nil
			}
			if !stale {
				return nil
			}
			if m.DeleteFlow(id) {
				opts.Logger.Info("gc: reclaimed stale flow", "id", id, "dir", dir)
				results <- dir
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, scanned, fmt.Errorf("flowfs: sweep %s: %w", domain, err)
	}
	close(results)
	for dir := range results {
		deleted = append(deleted, dir)
	}
	return deleted, scanned, nil
}

// isStale opens just enough of a flow to read its writer PID and last write
// time without disturbing readers already attached to it, since SweepStale
// must never block on or invalidate an in-use mapping. A flow counts as
// touched if either its writer has written recently or a reader has touched
// its access marker recently (AccessTime, and every OpenFlow, bump it): the
// marker exists precisely so that a flow with a dead writer but active
// readers is not reclaimed out from under them.
func isStale(m *Manager, id uuid.UUID, staleAfter time.Duration) (bool, string, error) {
	dir := flowDirPath(m.domain, id)
	region, err := openHeaderPrefix(dataFilePath(dir))
	if err != nil {
		return false, dir, err
	}
	defer region.Close()

	writerPID := region.Header().Common.WriterPID()
	if writerPID != 0 {
		alive, err := process.PidExists(int32(writerPID))
		if err == nil && alive {
			return false, dir, nil
		}
	}

	if staleAfter <= 0 {
		return true, dir, nil
	}

	lastWrite := mxltime.Timestamp(region.Header().Common.LastWriteTime())
	age := time.Duration(int64(mxltime.Now()) - int64(lastWrite))

	if info, err := os.Stat(accessFilePath(dir)); err == nil {
		if accessAge := time.Since(info.ModTime()); accessAge < age {
			age = accessAge
		}
	}

	return age >= staleAfter, dir, nil
}
