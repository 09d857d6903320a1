package mxl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moleksy/mxl/pkg/mxl"
	"github.com/moleksy/mxl/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDomain(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func TestCreateAndTearDownDiscreteVideoFlow(t *testing.T) {
	ctx := context.Background()
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	id, err := mxl.ParseFlowId("5fbec3b1-1b0f-417d-9059-8b94a47197ed")
	require.NoError(t, err)

	f, err := m.CreateDiscreteFlow(ctx, id, []byte(`{"format":"video"}`), mxl.DataFormatVideo, 5, mxl.Rational{Numerator: 60000, Denominator: 1001}, 1024)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := os.ReadDir(filepath.Join(m.Domain(), id.String()+".mxl-flow", "grains"))
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.NoFileExists(t, filepath.Join(m.Domain(), id.String()+".mxl-flow", "channels.data"))

	ids, err := m.ListFlows(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = m.CreateDiscreteFlow(ctx, id, []byte("{}"), mxl.DataFormatVideo, 5, mxl.Rational{Numerator: 60000, Denominator: 1001}, 1024)
	assert.Error(t, err)

	assert.True(t, m.DeleteFlow(ctx, id))
	ids, err = m.ListFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoDirExists(t, filepath.Join(m.Domain(), id.String()+".mxl-flow"))
}

func TestCreateAndTearDownContinuousAudioFlow(t *testing.T) {
	ctx := context.Background()
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	id, err := mxl.ParseFlowId("b3bb5be7-9fe9-4324-a5bb-4c70e1084449")
	require.NoError(t, err)

	f, err := m.CreateContinuousFlow(ctx, id, []byte("{}"), mxl.DataFormatAudio, mxl.Rational{Numerator: 48000, Denominator: 1}, 2, 4, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.NoDirExists(t, filepath.Join(m.Domain(), id.String()+".mxl-flow", "grains"))
}

func TestOpenNonExistentFlowIsNotFound(t *testing.T) {
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	id, err := mxl.ParseFlowId("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)

	_, err = m.OpenFlow(context.Background(), id, mxl.OpenReadWrite)
	assert.Equal(t, status.NotFound, status.Of(err))
}

func TestOpenWithInvalidModeIsInvalidArg(t *testing.T) {
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	_, err = m.OpenFlow(context.Background(), mxl.NewFlowId(), mxl.CreateReadWrite)
	assert.Equal(t, status.InvalidArg, status.Of(err))
}

func TestUnsupportedFormatLeavesNoDirectory(t *testing.T) {
	ctx := context.Background()
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	_, err = m.CreateDiscreteFlow(ctx, mxl.NewFlowId(), []byte("{}"), mxl.DataFormatAudio, 4, mxl.Rational{Numerator: 30, Denominator: 1}, 1024)
	assert.Equal(t, status.Unsupported, status.Of(err))

	entries, err := os.ReadDir(m.Domain())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriterReaderRendezvousOnGrainRing(t *testing.T) {
	ctx := context.Background()
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	id := mxl.NewFlowId()
	writer, err := m.CreateDiscreteFlow(ctx, id, []byte("{}"), mxl.DataFormatVideo, 10, mxl.Rational{Numerator: 60, Denominator: 1}, 32)
	require.NoError(t, err)
	defer writer.Close()

	w, err := writer.OpenGrain(100)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	reader, err := m.OpenFlow(ctx, id, mxl.OpenReadOnly)
	require.NoError(t, err)
	defer reader.Close()

	view, err := reader.GetGrain(ctx, 100, 1000*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), view.Index)

	_, err = reader.GetGrain(ctx, 90, 0)
	assert.Equal(t, status.OutOfRange, status.Of(err))

	// A writer that tries to regress a slot to an older index is rejected
	// as out-of-range, the same status a reader sees for an evicted grain.
	_, err = writer.OpenGrain(50)
	assert.Equal(t, status.OutOfRange, status.Of(err))
}

func TestContinuousFlowWriteAndReadThroughFacade(t *testing.T) {
	ctx := context.Background()
	m, err := mxl.NewManager(newDomain(t))
	require.NoError(t, err)

	id := mxl.NewFlowId()
	f, err := m.CreateContinuousFlow(ctx, id, []byte("{}"), mxl.DataFormatAudio, mxl.Rational{Numerator: 48000, Denominator: 1}, 2, 4, 64)
	require.NoError(t, err)
	defer f.Close()

	samples := make([]byte, 4*4)
	require.NoError(t, f.WriteChannel(0, 0, samples))

	head, err := f.HeadIndex(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head)

	view, err := f.ReadChannel(0, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 16, view.Len())

	_, err = f.OpenGrain(0)
	assert.Equal(t, status.Unsupported, status.Of(err))
}
