package grain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/mxllog"
	"github.com/moleksy/mxl/internal/shmem"
	"github.com/moleksy/mxl/pkg/mxltime"
)

var (
	// ErrOutOfRange is returned when the requested index has already been
	// overwritten by a newer grain occupying the same slot.
	ErrOutOfRange = errors.New("grain: index out of range")
	// ErrTimeout is returned when a blocking read's deadline expires before
	// the requested (or any new) grain becomes available.
	ErrTimeout = errors.New("grain: wait timed out")
	// ErrDuplicate is returned by OpenGrain when the slot already holds a
	// committed grain at exactly the requested index.
	ErrDuplicate = errors.New("grain: duplicate index")
	// ErrRegression is returned by OpenGrain when the slot already holds a
	// committed grain at a newer index than requested.
	ErrRegression = errors.New("grain: writer attempted to regress")
	// ErrPayloadTooLarge is returned when a write would exceed the slot's
	// fixed grainSize.
	ErrPayloadTooLarge = errors.New("grain: payload exceeds grain size")
)

// minPollInterval and maxPollInterval bound the backoff GetGrain uses while
// waiting for a slot to become available: sleeps start at minPollInterval
// and double up to maxPollInterval, since grains are shared across process
// boundaries where a futex or condition variable is not portable.
const (
	minPollInterval = 100 * time.Microsecond
	maxPollInterval = 5 * time.Millisecond
)

// nextPollInterval grows prev toward maxPollInterval, but never sleeps past
// nsUntilIndex when the target grain's scheduled arrival (per the flow's
// edit rate) is sooner than the backoff would otherwise allow.
func nextPollInterval(prev time.Duration, nsUntilIndex int64) time.Duration {
	next := prev * 2
	if next < minPollInterval {
		next = minPollInterval
	}
	if next > maxPollInterval {
		next = maxPollInterval
	}
	if hint := time.Duration(nsUntilIndex); nsUntilIndex > 0 && hint < next {
		next = hint
		if next < minPollInterval {
			next = minPollInterval
		}
	}
	return next
}

type slot struct {
	mapping *shmem.Mapping
	region  *shmem.TypedRegion[flowfs.GrainSlotHeader]
}

// Ring is a fixed-slot grain ring backing one discrete flow. It is safe for
// one writer and any number of concurrent readers.
type Ring struct {
	header *flowfs.DiscreteHeader
	slots  []slot

	logger *mxllog.Logger
}

// SetLogger attaches a flow-scoped logger, used to log every grain commit.
// A Ring with no logger set (the zero value) commits silently.
func (r *Ring) SetLogger(logger *mxllog.Logger) {
	r.logger = logger
}

// NewRing wraps a discrete flow's header and already-opened grain slot
// mappings into a Ring. It takes ownership of mappings: Ring.Close closes
// them all.
func NewRing(header *flowfs.DiscreteHeader, mappings []*shmem.Mapping) (*Ring, error) {
	if uint32(len(mappings)) != header.Discrete.GrainCount() {
		return nil, fmt.Errorf("grain: got %d slot mappings, header declares %d", len(mappings), header.Discrete.GrainCount())
	}
	slots := make([]slot, len(mappings))
	for i, m := range mappings {
		region, err := shmem.NewTypedRegion[flowfs.GrainSlotHeader](m)
		if err != nil {
			for _, s := range slots[:i] {
				s.region.Close()
			}
			return nil, fmt.Errorf("grain: overlay slot %d: %w", i, err)
		}
		slots[i] = slot{mapping: m, region: region}
	}
	return &Ring{header: header, slots: slots}, nil
}

// Close unmaps every grain slot.
func (r *Ring) Close() error {
	var firstErr error
	for _, s := range r.slots {
		if err := s.region.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Ring) slotFor(index uint64) *flowfs.GrainSlotHeader {
	n := uint64(len(r.slots))
	return r.slots[index%n].region.Header()
}

func (r *Ring) payloadFor(index uint64) []byte {
	n := uint64(len(r.slots))
	return r.slots[index%n].region.Bytes()
}

// GrainWriter is the handle returned by OpenGrain, scoped to filling and
// committing a single grain's payload.
type GrainWriter struct {
	ring    *Ring
	slot    *flowfs.GrainSlotHeader
	payload []byte
	index   uint64
}

// OpenGrain begins writing the grain at index i. It reclaims the slot
// i % grainCount, rejecting a request that would duplicate or regress the
// slot's currently held index.
func (r *Ring) OpenGrain(index uint64) (*GrainWriter, error) {
	s := r.slotFor(index)
	current := s.Index()
	if s.CommitedSize() > 0 {
		switch {
		case current == index:
			return nil, fmt.Errorf("grain: open %d: %w", index, ErrDuplicate)
		case current > index:
			return nil, fmt.Errorf("grain: open %d: %w", index, ErrRegression)
		}
	}
	s.SetCommitedSize(0)
	s.SetIndex(index)
	return &GrainWriter{ring: r, slot: s, payload: r.payloadFor(index), index: index}, nil
}

// Write copies data into the grain's payload starting at offset 0. It does
// not itself advance commitedSize; call Commit or CommitPartial to publish.
func (w *GrainWriter) Write(data []byte) error {
	if len(data) > len(w.payload) {
		return fmt.Errorf("grain: write %d bytes into %d-byte grain: %w", len(data), len(w.payload), ErrPayloadTooLarge)
	}
	copy(w.payload, data)
	return nil
}

// CommitPartial publishes the first n bytes of the payload as available,
// leaving the slot in the PARTIAL state (0 < n < grainSize) or COMMITTED
// state (n == grainSize).
func (w *GrainWriter) CommitPartial(n uint32) error {
	if n > uint32(len(w.payload)) {
		return fmt.Errorf("grain: commit %d bytes into %d-byte grain: %w", n, len(w.payload), ErrPayloadTooLarge)
	}
	w.slot.SetCommitedSize(n)
	w.ring.header.Discrete.IncrementSyncCounter()
	if w.ring.logger != nil {
		w.ring.logger.WithGrain(w.index).LogGrainCommit(context.Background(), n, w.slot.GrainSize())
	}
	return nil
}

// Commit publishes the full grain (commitedSize == grainSize).
func (w *GrainWriter) Commit() error {
	return w.CommitPartial(w.slot.GrainSize())
}

// GrainView is a read-only snapshot of a committed or partially committed
// grain returned by GetGrain.
type GrainView struct {
	Index        uint64
	CommitedSize uint32
	GrainSize    uint32
	DeviceIndex  int32
	Payload      []byte
}

// GetGrain returns the grain at index i, blocking up to timeout for it to
// become available if it has not yet been written. A zero timeout performs a
// single non-blocking check.
func (r *Ring) GetGrain(ctx context.Context, index uint64, timeout time.Duration) (*GrainView, error) {
	s := r.slotFor(index)
	deadline := time.Now().Add(timeout)
	rate := r.header.Discrete.GrainRate()
	backoff := minPollInterval

	for {
		current := s.Index()
		committed := s.CommitedSize()
		switch {
		case current == index && committed > 0:
			return &GrainView{
				Index:        current,
				CommitedSize: committed,
				GrainSize:    s.GrainSize(),
				DeviceIndex:  s.DeviceIndex(),
				Payload:      r.payloadFor(index)[:committed],
			}, nil
		case current > index:
			return nil, fmt.Errorf("grain: get %d: %w", index, ErrOutOfRange)
		}

		if timeout <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("grain: get %d: %w", index, ErrTimeout)
		}

		backoff = nextPollInterval(backoff, mxltime.NsUntilIndex(mxltime.Index(index), mxltime.Rational{Numerator: rate.Numerator, Denominator: rate.Denominator}))
		if remaining := time.Until(deadline); remaining < backoff {
			backoff = remaining
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitForNewGrain blocks until the grain at the flow's current edit-rate
// index becomes available, or timeout expires.
func (r *Ring) WaitForNewGrain(ctx context.Context, timeout time.Duration) (*GrainView, error) {
	rate := r.header.Discrete.GrainRate()
	target := uint64(mxltime.CurrentIndex(mxltime.Rational{Numerator: rate.Numerator, Denominator: rate.Denominator}))
	return r.GetGrain(ctx, target, timeout)
}
