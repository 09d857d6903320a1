package channelbuf

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/mxllog"
	"github.com/moleksy/mxl/internal/shmem"
	"github.com/moleksy/mxl/pkg/mxltime"
)

var (
	// ErrOutOfRange is returned by Read when the requested range has already
	// been overwritten or has not been written yet.
	ErrOutOfRange = errors.New("channelbuf: range out of range")
	// ErrInvalidChannel is returned for a channel index >= channelCount.
	ErrInvalidChannel = errors.New("channelbuf: invalid channel index")
	// ErrTimeout is returned when a blocking wait's deadline expires.
	ErrTimeout = errors.New("channelbuf: wait timed out")
)

// minPollInterval and maxPollInterval bound the backoff WaitForHeadAtLeast
// uses while waiting for writeHead to advance: sleeps start at
// minPollInterval and double up to maxPollInterval.
const (
	minPollInterval = 100 * time.Microsecond
	maxPollInterval = 5 * time.Millisecond
)

// nextPollInterval grows prev toward maxPollInterval, but never sleeps past
// nsUntilIndex when the target sample's scheduled arrival (per the flow's
// sample rate) is sooner than the backoff would otherwise allow.
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

// Buffer is the per-channel sample ring backing one continuous flow. It
// overlays flowfs's channels.data layout: a per-channel writeHead table
// followed by channelCount contiguous rings of bufferLength samples.
type Buffer struct {
	mapping        *shmem.Mapping
	channelCount   uint32
	bufferLength   uint32
	sampleWordSize uint32
	header         *flowfs.ContinuousHeader

	logger *mxllog.Logger
}

// SetLogger attaches a flow-scoped logger, used to log every channel write.
// A Buffer with no logger set (the zero value) writes silently.
func (b *Buffer) SetLogger(logger *mxllog.Logger) {
	b.logger = logger
}

// NewBuffer wraps an already-opened channels.data mapping for header's
// channel geometry.
func NewBuffer(header *flowfs.ContinuousHeader, mapping *shmem.Mapping) (*Buffer, error) {
	want := flowfs.ChannelsDataSize(header.Continuous.ChannelCount(), header.Continuous.BufferLength(), header.Continuous.SampleWordSize())
	if int64(mapping.Size()) < want {
		return nil, fmt.Errorf("channelbuf: mapping too small (have %d, want %d)", mapping.Size(), want)
	}
	return &Buffer{
		mapping:        mapping,
		channelCount:   header.Continuous.ChannelCount(),
		bufferLength:   header.Continuous.BufferLength(),
		sampleWordSize: header.Continuous.SampleWordSize(),
		header:         header,
	}, nil
}

// Close unmaps the underlying channels.data region.
func (b *Buffer) Close() error { return b.mapping.Close() }

func (b *Buffer) headSlot(channel uint32) *uint64 {
	data := b.mapping.Bytes()
	return (*uint64)(unsafe.Pointer(&data[uint64(channel)*8]))
}

func (b *Buffer) headIndexRaw(channel uint32) uint64 {
	return atomic.LoadUint64(b.headSlot(channel))
}

func (b *Buffer) ringBytes(channel uint32) []byte {
	data := b.mapping.Bytes()
	tableSize := flowfs.ChannelHeadTableSize(b.channelCount)
	ringSize := int64(b.bufferLength) * int64(b.sampleWordSize)
	offset := tableSize + int64(channel)*ringSize
	return data[offset : offset+ringSize]
}

func (b *Buffer) checkChannel(channel uint32) error {
	if channel >= b.channelCount {
		return fmt.Errorf("channelbuf: channel %d: %w", channel, ErrInvalidChannel)
	}
	return nil
}

// HeadIndex returns the channel's current writeHead (acquire semantics).
func (b *Buffer) HeadIndex(channel uint32) (uint64, error) {
	if err := b.checkChannel(channel); err != nil {
		return 0, err
	}
	return b.headIndexRaw(channel), nil
}

// Write copies samples into channel's ring starting at startIndex, wrapping
// with up to two copies, then advances writeHead to
// max(writeHead, startIndex+len(samples)/sampleWordSize).
func (b *Buffer) Write(channel uint32, startIndex uint64, samples []byte) error {
	if err := b.checkChannel(channel); err != nil {
		return err
	}
	if len(samples)%int(b.sampleWordSize) != 0 {
		return fmt.Errorf("channelbuf: write %d bytes is not a whole number of %d-byte samples", len(samples), b.sampleWordSize)
	}
	sampleCount := uint64(len(samples)) / uint64(b.sampleWordSize)
	if sampleCount == 0 {
		return nil
	}

	ring := b.ringBytes(channel)
	wordSize := uint64(b.sampleWordSize)
	bufLen := uint64(b.bufferLength)

	// A write longer than the ring leaves only its last bufLen samples
	// resident, so only those are copied.
	src, from, count := samples, startIndex, sampleCount
	if count > bufLen {
		skip := count - bufLen
		src = samples[skip*wordSize:]
		from += skip
		count = bufLen
	}

	pos := (from % bufLen) * wordSize
	firstSamples := bufLen - from%bufLen
	if firstSamples > count {
		firstSamples = count
	}
	firstBytes := firstSamples * wordSize
	copy(ring[pos:pos+firstBytes], src[:firstBytes])

	if remaining := count - firstSamples; remaining > 0 {
		copy(ring[:remaining*wordSize], src[firstBytes:])
	}

	end := startIndex + sampleCount
	headSlot := b.headSlot(channel)
	for {
		cur := atomic.LoadUint64(headSlot)
		if end <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(headSlot, cur, end) {
			break
		}
	}
	b.header.Continuous.IncrementSyncCounter()
	if b.logger != nil {
		b.logger.WithChannel(channel).LogChannelWrite(context.Background(), startIndex, int(sampleCount))
	}
	return nil
}

// View is a contiguous or two-segment snapshot of a Read result.
type View struct {
	Segments [][]byte
}

// Len returns the total number of bytes across all segments.
func (v View) Len() int {
	n := 0
	for _, s := range v.Segments {
		n += len(s)
	}
	return n
}

// Read returns the length-sample range starting at startIndex on channel.
// It fails with ErrOutOfRange if any part of the range has not been
// written yet or has already fallen off the back of the ring.
func (b *Buffer) Read(channel uint32, startIndex uint64, length uint32) (View, error) {
	if err := b.checkChannel(channel); err != nil {
		return View{}, err
	}
	head, _ := b.HeadIndex(channel)
	bufLen := uint64(b.bufferLength)
	end := startIndex + uint64(length)

	if end > head {
		return View{}, fmt.Errorf("channelbuf: read [%d,%d) on channel %d: %w", startIndex, end, channel, ErrOutOfRange)
	}
	if head > bufLen && startIndex < head-bufLen {
		return View{}, fmt.Errorf("channelbuf: read [%d,%d) on channel %d: %w", startIndex, end, channel, ErrOutOfRange)
	}

	ring := b.ringBytes(channel)
	wordSize := uint64(b.sampleWordSize)
	pos := (startIndex % bufLen) * wordSize
	firstSamples := bufLen - startIndex%bufLen
	if firstSamples > uint64(length) {
		firstSamples = uint64(length)
	}
	firstBytes := firstSamples * wordSize

	view := View{Segments: [][]byte{ring[pos : pos+firstBytes]}}
	if remaining := uint64(length) - firstSamples; remaining > 0 {
		view.Segments = append(view.Segments, ring[:remaining*wordSize])
	}
	return view, nil
}

// WaitForHeadAtLeast blocks until channel's writeHead reaches at least
// target, or timeout expires.
func (b *Buffer) WaitForHeadAtLeast(ctx context.Context, channel uint32, target uint64, timeout time.Duration) error {
	if err := b.checkChannel(channel); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	rate := b.header.Continuous.SampleRate()
	backoff := minPollInterval

	for {
		if b.headIndexRaw(channel) >= target {
			return nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return fmt.Errorf("channelbuf: wait for head >= %d on channel %d: %w", target, channel, ErrTimeout)
		}

		backoff = nextPollInterval(backoff, mxltime.NsUntilIndex(mxltime.Index(target), mxltime.Rational{Numerator: rate.Numerator, Denominator: rate.Denominator}))
		if remaining := time.Until(deadline); remaining < backoff {
			backoff = remaining
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
