package mxl

import (
	"context"
	"time"

	"github.com/moleksy/mxl/internal/channelbuf"
	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/grain"
	"github.com/moleksy/mxl/pkg/status"
)

// Flow is a handle onto an open discrete or continuous flow. Its Kind
// determines which of the grain-ring or channel-buffer methods apply;
// calling the wrong ones returns status.Unsupported.
type Flow struct {
	id   FlowId
	kind Kind

	discreteHandle   *flowfs.DiscreteFlow
	ring             *grain.Ring
	continuousHandle *flowfs.ContinuousFlow
	buffer           *channelbuf.Buffer

	pollTimeout time.Duration
}

// Id returns the flow's identifier.
func (f *Flow) Id() FlowId { return f.id }

// Kind reports whether f is discrete (grain-based) or continuous
// (sample-based).
func (f *Flow) Kind() Kind { return f.kind }

// Close unmaps every mapping backing the flow.
func (f *Flow) Close() error {
	switch f.kind {
	case KindDiscrete:
		err := f.ring.Close()
		if cerr := f.discreteHandle.Close(); err == nil {
			err = cerr
		}
		return err
	default:
		err := f.buffer.Close()
		if cerr := f.continuousHandle.Close(); err == nil {
			err = cerr
		}
		return err
	}
}

// OpenGrain begins writing the grain at index. Only valid on a discrete
// flow.
func (f *Flow) OpenGrain(index uint64) (*grain.GrainWriter, error) {
	if f.kind != KindDiscrete {
		return nil, status.New(status.Unsupported, "mxl: OpenGrain requires a discrete flow")
	}
	w, err := f.ring.OpenGrain(index)
	return w, translateError(err)
}

// GetGrain returns the grain at index, blocking up to timeout (or the
// manager's default poll timeout if timeout is zero) for it to arrive. Only
// valid on a discrete flow.
func (f *Flow) GetGrain(ctx context.Context, index uint64, timeout time.Duration) (*grain.GrainView, error) {
	if f.kind != KindDiscrete {
		return nil, status.New(status.Unsupported, "mxl: GetGrain requires a discrete flow")
	}
	v, err := f.ring.GetGrain(ctx, index, f.resolveTimeout(timeout))
	return v, translateError(err)
}

// WaitForNewGrain blocks until the grain at the flow's current edit-rate
// index becomes available. Only valid on a discrete flow.
func (f *Flow) WaitForNewGrain(ctx context.Context, timeout time.Duration) (*grain.GrainView, error) {
	if f.kind != KindDiscrete {
		return nil, status.New(status.Unsupported, "mxl: WaitForNewGrain requires a discrete flow")
	}
	v, err := f.ring.WaitForNewGrain(ctx, f.resolveTimeout(timeout))
	return v, translateError(err)
}

// WriteChannel writes samples into channel starting at startIndex. Only
// valid on a continuous flow.
func (f *Flow) WriteChannel(channel uint32, startIndex uint64, samples []byte) error {
	if f.kind != KindContinuous {
		return status.New(status.Unsupported, "mxl: WriteChannel requires a continuous flow")
	}
	return translateError(f.buffer.Write(channel, startIndex, samples))
}

// ReadChannel returns the length-sample range starting at startIndex on
// channel. Only valid on a continuous flow.
func (f *Flow) ReadChannel(channel uint32, startIndex uint64, length uint32) (channelbuf.View, error) {
	if f.kind != KindContinuous {
		return channelbuf.View{}, status.New(status.Unsupported, "mxl: ReadChannel requires a continuous flow")
	}
	v, err := f.buffer.Read(channel, startIndex, length)
	return v, translateError(err)
}

// HeadIndex returns channel's current writeHead. Only valid on a continuous
// flow.
func (f *Flow) HeadIndex(channel uint32) (uint64, error) {
	if f.kind != KindContinuous {
		return 0, status.New(status.Unsupported, "mxl: HeadIndex requires a continuous flow")
	}
	h, err := f.buffer.HeadIndex(channel)
	return h, translateError(err)
}

// WaitForChannelHead blocks until channel's writeHead reaches at least
// target. Only valid on a continuous flow.
func (f *Flow) WaitForChannelHead(ctx context.Context, channel uint32, target uint64, timeout time.Duration) error {
	if f.kind != KindContinuous {
		return status.New(status.Unsupported, "mxl: WaitForChannelHead requires a continuous flow")
	}
	return translateError(f.buffer.WaitForHeadAtLeast(ctx, channel, target, f.resolveTimeout(timeout)))
}

func (f *Flow) resolveTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return f.pollTimeout
}
