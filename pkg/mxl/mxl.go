// Package mxl is the public façade over the flow filesystem, grain ring and
// channel buffer: creating, opening, reading and writing flows through a
// single status-coded API, independent of a flow's discrete or continuous
// kind.
package mxl

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/moleksy/mxl/internal/channelbuf"
	"github.com/moleksy/mxl/internal/flowfs"
	"github.com/moleksy/mxl/internal/grain"
	"github.com/moleksy/mxl/pkg/status"
)

// FlowId identifies a flow.
type FlowId = uuid.UUID

// NewFlowId generates a new random FlowId.
func NewFlowId() FlowId { return uuid.New() }

// ParseFlowId parses a FlowId from its string form.
func ParseFlowId(s string) (FlowId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FlowId{}, status.Wrap(status.InvalidArg, "parse flow id", err)
	}
	return id, nil
}

// Rational is a numerator/denominator pair used for edit and sample rates.
type Rational = flowfs.Rational

// DataFormat tags the media kind carried by a flow.
type DataFormat = flowfs.DataFormat

const (
	DataFormatUnspecified = flowfs.DataFormatUnspecified
	DataFormatVideo       = flowfs.DataFormatVideo
	DataFormatAudio       = flowfs.DataFormatAudio
	DataFormatData        = flowfs.DataFormatData
)

// AccessMode selects how a caller attaches to a flow via OpenFlow.
type AccessMode = flowfs.AccessMode

const (
	CreateReadWrite = flowfs.CreateReadWrite
	OpenReadWrite   = flowfs.OpenReadWrite
	OpenReadOnly    = flowfs.OpenReadOnly
)

// Kind distinguishes a flow's underlying storage model.
type Kind int

const (
	KindDiscrete Kind = iota
	KindContinuous
)

func (k Kind) String() string {
	if k == KindContinuous {
		return "continuous"
	}
	return "discrete"
}

// translateError maps an internal error to a status.Error, preserving any
// status.Error already present and falling back to sentinel matching for
// errors surfaced by internal/flowfs, internal/grain and internal/channelbuf.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*status.Error); ok {
		return err
	}

	switch {
	case isAny(err, flowfs.ErrNotFound, flowfs.ErrDomainInvalid):
		return status.Wrap(status.NotFound, err.Error(), err)
	case isAny(err, flowfs.ErrAlreadyExists):
		return status.Wrap(status.InvalidArg, err.Error(), err)
	case isAny(err, flowfs.ErrUnsupportedFormat):
		return status.Wrap(status.Unsupported, err.Error(), err)
	case isAny(err, flowfs.ErrInvalidRate, flowfs.ErrInvalidAccessMode, flowfs.ErrHeaderTooSmall):
		return status.Wrap(status.InvalidArg, err.Error(), err)
	case isAny(err, grain.ErrOutOfRange, grain.ErrRegression, channelbuf.ErrOutOfRange):
		return status.Wrap(status.OutOfRange, err.Error(), err)
	case isAny(err, grain.ErrTimeout, channelbuf.ErrTimeout):
		return status.Wrap(status.Timeout, err.Error(), err)
	case isAny(err, grain.ErrDuplicate, grain.ErrPayloadTooLarge, channelbuf.ErrInvalidChannel):
		return status.Wrap(status.InvalidArg, err.Error(), err)
	case isAny(err, context.DeadlineExceeded):
		return status.Wrap(status.Timeout, err.Error(), err)
	default:
		return status.Wrap(status.IOError, err.Error(), err)
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
