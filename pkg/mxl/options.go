package mxl

import (
	"time"

	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/mxllog"
)

type options struct {
	logger      *mxllog.Logger
	pollTimeout time.Duration
	gc          *flowfs.GCOptions
	gcInterval  time.Duration
}

// Option configures a Manager.
type Option func(*options)

// WithLogger configures structured logging for the manager and every Flow
// it creates or opens. Pass nil to disable logging.
func WithLogger(logger *mxllog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = mxllog.Noop()
		}
		o.logger = logger
	}
}

// WithPollTimeout sets the default timeout used by blocking read operations
// (GetGrain, WaitForNewGrain, WaitForChannelHead) that do not specify their
// own.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// WithGCSweep enables a periodic background sweep for stale flows (writer
// process gone, untouched past staleAfter) at the given interval. It is
// opt-in: without this option, Manager never deletes a flow the caller did
// not explicitly ask to delete.
func WithGCSweep(interval, staleAfter time.Duration) Option {
	return func(o *options) {
		o.gcInterval = interval
		o.gc = &flowfs.GCOptions{StaleAfter: staleAfter}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:      mxllog.Noop(),
		pollTimeout: 1 * time.Second,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
