package grain_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/grain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, grainCount uint32, payloadSize uint32) (*grain.Ring, *flowfs.Manager, uuid.UUID) {
	t.Helper()
	dir := t.TempDir()
	m, err := flowfs.NewManager(dir, nil)
	require.NoError(t, err)

	id := uuid.New()
	f, err := m.CreateDiscreteFlow(id, []byte("{}"), flowfs.DataFormatVideo, grainCount, flowfs.Rational{Numerator: 60, Denominator: 1}, payloadSize)
	require.NoError(t, err)

	r, err := grain.NewRing(f.Header, f.Grains)
	require.NoError(t, err)
	return r, m, id
}

func TestOpenCommitThenGet(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	w, err := r.OpenGrain(0)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("hello world12345")[:16]))
	require.NoError(t, w.Commit())

	view, err := r.GetGrain(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), view.CommitedSize)
	assert.Equal(t, []byte("hello world12345")[:16], view.Payload)
}

func TestGetGrainNotYetWrittenTimesOut(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	_, err := r.GetGrain(context.Background(), 0, 5*time.Millisecond)
	assert.ErrorIs(t, err, grain.ErrTimeout)
}

func TestGetGrainZeroTimeoutIsNonBlocking(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	start := time.Now()
	_, err := r.GetGrain(context.Background(), 0, 0)
	assert.ErrorIs(t, err, grain.ErrTimeout)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestOpenGrainRejectsDuplicateAndRegression(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	w, err := r.OpenGrain(5)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, err = r.OpenGrain(5)
	assert.ErrorIs(t, err, grain.ErrDuplicate)

	_, err = r.OpenGrain(1)
	assert.ErrorIs(t, err, grain.ErrRegression)

	w2, err := r.OpenGrain(9)
	require.NoError(t, err)
	require.NoError(t, w2.Commit())
}

func TestOverwrittenGrainReturnsOutOfRange(t *testing.T) {
	r, _, _ := newTestRing(t, 10, 16)
	defer r.Close()

	w, err := r.OpenGrain(100)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, err = r.GetGrain(context.Background(), 90, 0)
	assert.ErrorIs(t, err, grain.ErrOutOfRange)

	view, err := r.GetGrain(context.Background(), 100, 1000*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), view.Index)
}

func TestPartialCommitReadableUpToCommitedSize(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	w, err := r.OpenGrain(0)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("1234567890abcdef")))
	require.NoError(t, w.CommitPartial(8))

	view, err := r.GetGrain(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), view.CommitedSize)
	assert.Len(t, view.Payload, 8)
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	w, err := r.OpenGrain(0)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Write(make([]byte, 17)), grain.ErrPayloadTooLarge)
}

func TestConcurrentReaderBlocksUntilWriterCommits(t *testing.T) {
	r, _, _ := newTestRing(t, 4, 16)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		w, err := r.OpenGrain(0)
		require.NoError(t, err)
		require.NoError(t, w.Commit())
		close(done)
	}()

	view, err := r.GetGrain(context.Background(), 0, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), view.Index)
	<-done
}

func TestNewRingRejectsSlotCountMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir())
	m, err := flowfs.NewManager(dir, nil)
	require.NoError(t, err)
	f, err := m.CreateDiscreteFlow(uuid.New(), []byte("{}"), flowfs.DataFormatVideo, 4, flowfs.Rational{Numerator: 30, Denominator: 1}, 16)
	require.NoError(t, err)

	_, err = grain.NewRing(f.Header, f.Grains[:2])
	assert.Error(t, err)
}
