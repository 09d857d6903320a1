package mxl

import (
	"context"
	"time"

	"github.com/moleksy/mxl/internal/channelbuf"
	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/grain"
	"github.com/moleksy/mxl/pkg/status"
)

// Manager mediates flow creation, discovery, opening and deletion within a
// domain directory, translating internal errors to status-coded ones at the
// boundary.
type Manager struct {
	inner *flowfs.Manager
	opts  options

	gcCancel context.CancelFunc
}

// NewManager opens domain as an MXL domain directory. domain must already
// exist and be a directory; NewManager never creates it.
func NewManager(domain string, optFns ...Option) (*Manager, error) {
	o := applyOptions(optFns)
	inner, err := flowfs.NewManager(domain, o.logger.Logger)
	if err != nil {
		return nil, translateError(err)
	}
	m := &Manager{inner: inner, opts: o}
	if o.gc != nil && o.gcInterval > 0 {
		m.startGCLoop()
	}
	return m, nil
}

func (m *Manager) startGCLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	m.gcCancel = cancel
	go func() {
		ticker := time.NewTicker(m.opts.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, scanned, err := flowfs.SweepStale(ctx, m.inner.Domain(), *m.opts.gc)
				m.opts.logger.LogGCSweep(ctx, m.inner.Domain(), scanned, len(deleted), err)
			}
		}
	}()
}

// Close stops any background GC sweep started via WithGCSweep. It does not
// close any Flow handles the caller has open.
func (m *Manager) Close() error {
	if m.gcCancel != nil {
		m.gcCancel()
	}
	return nil
}

// Domain returns the domain directory path.
func (m *Manager) Domain() string { return m.inner.Domain() }

// CreateDiscreteFlow creates and publishes a discrete (grain-based) flow and
// returns a Flow ready for writing.
func (m *Manager) CreateDiscreteFlow(ctx context.Context, id FlowId, flowDef []byte, format DataFormat, grainCount uint32, grainRate Rational, payloadSize uint32) (*Flow, error) {
	flowLogger := m.opts.logger.WithFlow(id)
	created, err := m.inner.CreateDiscreteFlow(id, flowDef, format, grainCount, grainRate, payloadSize)
	flowLogger.LogPublish(ctx, id, KindDiscrete.String(), err)
	if err != nil {
		return nil, translateError(err)
	}
	ring, err := grain.NewRing(created.Header, created.Grains)
	if err != nil {
		created.Close()
		return nil, translateError(err)
	}
	ring.SetLogger(flowLogger)
	return &Flow{id: id, kind: KindDiscrete, discreteHandle: created, ring: ring, pollTimeout: m.opts.pollTimeout}, nil
}

// CreateContinuousFlow creates and publishes a continuous (sample-based)
// flow and returns a Flow ready for writing.
func (m *Manager) CreateContinuousFlow(ctx context.Context, id FlowId, flowDef []byte, format DataFormat, sampleRate Rational, channelCount, sampleWordSize, bufferLength uint32) (*Flow, error) {
	flowLogger := m.opts.logger.WithFlow(id)
	created, err := m.inner.CreateContinuousFlow(id, flowDef, format, sampleRate, channelCount, sampleWordSize, bufferLength)
	flowLogger.LogPublish(ctx, id, KindContinuous.String(), err)
	if err != nil {
		return nil, translateError(err)
	}
	buf, err := channelbuf.NewBuffer(created.Header, created.Channels)
	if err != nil {
		created.Close()
		return nil, translateError(err)
	}
	buf.SetLogger(flowLogger)
	return &Flow{id: id, kind: KindContinuous, continuousHandle: created, buffer: buf, pollTimeout: m.opts.pollTimeout}, nil
}

// OpenFlow opens an existing published flow. mode must be OpenReadWrite or
// OpenReadOnly.
func (m *Manager) OpenFlow(ctx context.Context, id FlowId, mode AccessMode) (*Flow, error) {
	flowLogger := m.opts.logger.WithFlow(id)
	opened, err := m.inner.OpenFlow(id, mode)
	flowLogger.LogOpen(ctx, id, modeString(mode), err)
	if err != nil {
		return nil, translateError(err)
	}

	switch h := opened.(type) {
	case *flowfs.DiscreteFlow:
		ring, err := grain.NewRing(h.Header, h.Grains)
		if err != nil {
			h.Close()
			return nil, translateError(err)
		}
		ring.SetLogger(flowLogger)
		return &Flow{id: id, kind: KindDiscrete, discreteHandle: h, ring: ring, pollTimeout: m.opts.pollTimeout}, nil
	case *flowfs.ContinuousFlow:
		buf, err := channelbuf.NewBuffer(h.Header, h.Channels)
		if err != nil {
			h.Close()
			return nil, translateError(err)
		}
		buf.SetLogger(flowLogger)
		return &Flow{id: id, kind: KindContinuous, continuousHandle: h, buffer: buf, pollTimeout: m.opts.pollTimeout}, nil
	default:
		return nil, status.New(status.Unknown, "mxl: unrecognized flow handle")
	}
}

// ListFlows enumerates published flows in the domain.
func (m *Manager) ListFlows(ctx context.Context) ([]FlowId, error) {
	ids, err := m.inner.ListFlows()
	if err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// DeleteFlow removes a flow's entire directory. It returns false (never an
// error) if there was nothing to remove.
func (m *Manager) DeleteFlow(ctx context.Context, id FlowId) bool {
	ok := m.inner.DeleteFlow(id)
	m.opts.logger.WithFlow(id).LogDelete(ctx, id, ok)
	return ok
}

func modeString(mode AccessMode) string {
	switch mode {
	case OpenReadWrite:
		return "read-write"
	case OpenReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}
