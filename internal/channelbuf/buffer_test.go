package channelbuf_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moleksy/mxl/internal/channelbuf"
	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T, channelCount, sampleWordSize, bufferLength uint32) (*channelbuf.Buffer, *flowfs.ContinuousFlow) {
	t.Helper()
	dir := t.TempDir()
	m, err := flowfs.NewManager(dir, nil)
	require.NoError(t, err)

	f, err := m.CreateContinuousFlow(uuid.New(), []byte("{}"), flowfs.DataFormatAudio, flowfs.Rational{Numerator: 48000, Denominator: 1}, channelCount, sampleWordSize, bufferLength)
	require.NoError(t, err)

	b, err := channelbuf.NewBuffer(f.Header, f.Channels)
	require.NoError(t, err)
	return b, f
}

func TestChannelDataSizeMatchesGeometry(t *testing.T) {
	assert.Equal(t, int64(2*4096*4), flowfs.ChannelPayloadSize(2, 4096, 4))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b, f := newTestBuffer(t, 2, 4, 16)
	defer f.Close()

	samples := make([]byte, 4*4) // 4 samples, 4 bytes each
	for i := range samples {
		samples[i] = byte(i + 1)
	}
	require.NoError(t, b.Write(0, 0, samples))

	head, err := b.HeadIndex(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head)

	view, err := b.Read(0, 0, 4)
	require.NoError(t, err)
	require.Len(t, view.Segments, 1)
	assert.Equal(t, samples, view.Segments[0])
}

func TestWriteWrapsAcrossRingEnd(t *testing.T) {
	b, f := newTestBuffer(t, 1, 4, 4) // 4-sample ring
	defer f.Close()

	first := []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}
	require.NoError(t, b.Write(0, 0, first)) // fills indices 0..2, head=3

	second := make([]byte, 8)
	for i := range second {
		second[i] = byte(0xAA)
	}
	require.NoError(t, b.Write(0, 3, second)) // indices 3,4 -> wraps to slot 0

	view, err := b.Read(0, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, view.Len())
}

func TestReadBeyondHeadIsOutOfRange(t *testing.T) {
	b, f := newTestBuffer(t, 1, 4, 8)
	defer f.Close()

	_, err := b.Read(0, 0, 1)
	assert.ErrorIs(t, err, channelbuf.ErrOutOfRange)
}

func TestReadEvictedRangeIsOutOfRange(t *testing.T) {
	b, f := newTestBuffer(t, 1, 4, 4)
	defer f.Close()

	samples := make([]byte, 4*4*3) // 12 samples through a 4-sample ring
	require.NoError(t, b.Write(0, 0, samples))

	_, err := b.Read(0, 0, 1)
	assert.ErrorIs(t, err, channelbuf.ErrOutOfRange)
}

func TestInvalidChannelRejected(t *testing.T) {
	b, f := newTestBuffer(t, 2, 4, 16)
	defer f.Close()

	_, err := b.HeadIndex(5)
	assert.ErrorIs(t, err, channelbuf.ErrInvalidChannel)
}

func TestWaitForHeadAtLeastUnblocksOnWrite(t *testing.T) {
	b, f := newTestBuffer(t, 1, 4, 16)
	defer f.Close()

	done := make(chan struct{})
	go func() {
		time.Sleep(15 * time.Millisecond)
		require.NoError(t, b.Write(0, 0, make([]byte, 16)))
		close(done)
	}()

	require.NoError(t, b.WaitForHeadAtLeast(context.Background(), 0, 4, 500*time.Millisecond))
	<-done
}

func TestWaitForHeadAtLeastTimesOut(t *testing.T) {
	b, f := newTestBuffer(t, 1, 4, 16)
	defer f.Close()

	err := b.WaitForHeadAtLeast(context.Background(), 0, 1, 5*time.Millisecond)
	assert.ErrorIs(t, err, channelbuf.ErrTimeout)
}
