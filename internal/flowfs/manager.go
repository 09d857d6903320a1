// Package flowfs implements the flow directory layout and its atomic
// publication, discovery, opening and deletion.
package flowfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/moleksy/mxl/internal/shmem"
	"github.com/moleksy/mxl/pkg/mxltime"
)

// AccessMode is the mode a caller requests when attaching to a flow.
// CreateReadWrite is reserved for the internal creation path and is
// rejected by OpenFlow.
type AccessMode = shmem.Mode

const (
	CreateReadWrite = shmem.CreateReadWrite
	OpenReadWrite   = shmem.OpenReadWrite
	OpenReadOnly    = shmem.OpenReadOnly
)

var (
	// ErrDomainInvalid is returned when the domain path does not exist or
	// is not a directory.
	ErrDomainInvalid = errors.New("flowfs: domain path does not exist or is not a directory")
	// ErrAlreadyExists is returned by CreateDiscreteFlow/CreateContinuousFlow
	// when a flow with the given id is already published.
	ErrAlreadyExists = errors.New("flowfs: flow already exists")
	// ErrUnsupportedFormat is returned when the requested format does not
	// match the flow kind being created.
	ErrUnsupportedFormat = errors.New("flowfs: unsupported data format for this flow kind")
	// ErrInvalidRate is returned when a rate has a zero numerator or
	// denominator.
	ErrInvalidRate = errors.New("flowfs: invalid rate")
	// ErrInvalidAccessMode is returned by OpenFlow when passed
	// CreateReadWrite, which is reserved for creation.
	ErrInvalidAccessMode = errors.New("flowfs: invalid access mode for open")
	// ErrNotFound is returned when a flow id does not resolve to a
	// published flow directory.
	ErrNotFound = errors.New("flowfs: flow not found")
	// ErrHeaderTooSmall is returned by OpenFlow when a header's recorded
	// size field is smaller than the Go struct expected for its format,
	// indicating a truncated or downlevel header.
	ErrHeaderTooSmall = errors.New("flowfs: header size smaller than expected for format")
)

// DiscreteFlow is a handle onto an opened or newly created discrete flow.
type DiscreteFlow struct {
	Dir     string
	Header  *DiscreteHeader
	region  *shmem.TypedRegion[DiscreteHeader]
	Grains  []*shmem.Mapping
}

// Close unmaps the flow's header and every grain slot's mapping.
func (f *DiscreteFlow) Close() error {
	var firstErr error
	for _, g := range f.Grains {
		if err := g.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.region.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ContinuousFlow is a handle onto an opened or newly created continuous flow.
type ContinuousFlow struct {
	Dir      string
	Header   *ContinuousHeader
	region   *shmem.TypedRegion[ContinuousHeader]
	Channels *shmem.Mapping
}

// Close unmaps the flow's header and its channel data region.
func (f *ContinuousFlow) Close() error {
	var firstErr error
	if f.Channels != nil {
		if err := f.Channels.Close(); err != nil {
			firstErr = err
		}
	}
	if err := f.region.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Manager owns a domain directory and mediates flow creation, discovery,
// opening and deletion within it.
type Manager struct {
	domain string
	logger *slog.Logger
}

// NewManager canonicalizes domain and validates it exists and is a
// directory. A missing or non-directory domain is a fatal construction
// error.
func NewManager(domain string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	abs, err := filepath.Abs(domain)
	if err != nil {
		return nil, fmt.Errorf("flowfs: resolve domain %s: %w", domain, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("flowfs: %s: %w", domain, ErrDomainInvalid)
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("flowfs: %s: %w", domain, ErrDomainInvalid)
	}
	return &Manager{domain: real, logger: logger}, nil
}

// Domain returns the canonicalized domain path.
func (m *Manager) Domain() string { return m.domain }

// CreateDiscreteFlow atomically creates and publishes a discrete (grain-based)
// flow. flowDef is stored byte-for-byte as flow.json.
func (m *Manager) CreateDiscreteFlow(id uuid.UUID, flowDef []byte, format DataFormat, grainCount uint32, grainRate Rational, payloadSize uint32) (*DiscreteFlow, error) {
	if !format.IsDiscrete() {
		return nil, fmt.Errorf("flowfs: create discrete flow %s with format %s: %w", id, format, ErrUnsupportedFormat)
	}
	if grainRate.Numerator == 0 || grainRate.Denominator == 0 {
		return nil, fmt.Errorf("flowfs: create discrete flow %s: %w", id, ErrInvalidRate)
	}
	if grainCount < 1 {
		return nil, fmt.Errorf("flowfs: create discrete flow %s: grainCount must be >= 1", id)
	}
	if dest := flowDirPath(m.domain, id); dirExists(dest) {
		return nil, fmt.Errorf("flowfs: %s: %w", id, ErrAlreadyExists)
	}

	staging, err := stagingDir(m.domain)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			rollback(staging)
		}
	}()

	if err := os.WriteFile(descriptorFilePath(staging), flowDef, 0o644); err != nil {
		return nil, fmt.Errorf("flowfs: write flow descriptor: %w", err)
	}
	if err := touchFile(accessFilePath(staging)); err != nil {
		return nil, fmt.Errorf("flowfs: create access marker: %w", err)
	}

	headerSize := int64(sizeOfDiscreteHeader())
	mapping, err := shmem.Create(dataFilePath(staging), headerSize)
	if err != nil {
		return nil, fmt.Errorf("flowfs: create header region: %w", err)
	}
	region, err := shmem.NewTypedRegion[DiscreteHeader](mapping)
	if err != nil {
		mapping.Close()
		return nil, fmt.Errorf("flowfs: overlay discrete header: %w", err)
	}

	hdr := region.Header()
	hdr.version = headerVersion
	hdr.size = uint32(headerSize)
	initCommonFlowInfo(&hdr.Common, id, format)
	hdr.Discrete.grainRateN = grainRate.Numerator
	hdr.Discrete.grainRateD = grainRate.Denominator
	hdr.Discrete.grainCount = grainCount
	hdr.Discrete.payloadSize = payloadSize

	if err := os.Mkdir(grainsDirPath(staging), 0o755); err != nil {
		region.Close()
		return nil, fmt.Errorf("flowfs: create grains directory: %w", err)
	}

	grains := make([]*shmem.Mapping, 0, grainCount)
	for slot := uint32(0); slot < grainCount; slot++ {
		g, err := createGrainSlot(grainFilePath(staging, slot), payloadSize)
		if err != nil {
			region.Close()
			for _, prior := range grains {
				prior.Close()
			}
			return nil, fmt.Errorf("flowfs: create grain slot %d: %w", slot, err)
		}
		grains = append(grains, g)
	}

	dest := flowDirPath(m.domain, id)
	if err := publish(staging, dest); err != nil {
		region.Close()
		for _, g := range grains {
			g.Close()
		}
		return nil, err
	}
	ok = true

	m.logger.Debug("published discrete flow", "id", id, "grains", grainCount, "payload", payloadSize)
	return &DiscreteFlow{Dir: dest, Header: hdr, region: region, Grains: grains}, nil
}

// CreateContinuousFlow atomically creates and publishes a continuous
// (sample-based) flow.
func (m *Manager) CreateContinuousFlow(id uuid.UUID, flowDef []byte, format DataFormat, sampleRate Rational, channelCount, sampleWordSize, bufferLength uint32) (*ContinuousFlow, error) {
	if !format.IsContinuous() {
		return nil, fmt.Errorf("flowfs: create continuous flow %s with format %s: %w", id, format, ErrUnsupportedFormat)
	}
	if sampleRate.Numerator == 0 || sampleRate.Denominator == 0 {
		return nil, fmt.Errorf("flowfs: create continuous flow %s: %w", id, ErrInvalidRate)
	}
	if channelCount < 1 || sampleWordSize < 1 || bufferLength < 1 {
		return nil, fmt.Errorf("flowfs: create continuous flow %s: channelCount, sampleWordSize and bufferLength must be >= 1", id)
	}
	if dest := flowDirPath(m.domain, id); dirExists(dest) {
		return nil, fmt.Errorf("flowfs: %s: %w", id, ErrAlreadyExists)
	}

	staging, err := stagingDir(m.domain)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			rollback(staging)
		}
	}()

	if err := os.WriteFile(descriptorFilePath(staging), flowDef, 0o644); err != nil {
		return nil, fmt.Errorf("flowfs: write flow descriptor: %w", err)
	}
	if err := touchFile(accessFilePath(staging)); err != nil {
		return nil, fmt.Errorf("flowfs: create access marker: %w", err)
	}

	headerSize := int64(sizeOfContinuousHeader())
	mapping, err := shmem.Create(dataFilePath(staging), headerSize)
	if err != nil {
		return nil, fmt.Errorf("flowfs: create header region: %w", err)
	}
	region, err := shmem.NewTypedRegion[ContinuousHeader](mapping)
	if err != nil {
		mapping.Close()
		return nil, fmt.Errorf("flowfs: overlay continuous header: %w", err)
	}

	hdr := region.Header()
	hdr.version = headerVersion
	hdr.size = uint32(headerSize)
	initCommonFlowInfo(&hdr.Common, id, format)
	hdr.Continuous.sampleRateN = sampleRate.Numerator
	hdr.Continuous.sampleRateD = sampleRate.Denominator
	hdr.Continuous.channelCount = channelCount
	hdr.Continuous.sampleWordSize = sampleWordSize
	hdr.Continuous.bufferLength = bufferLength

	channelBytes := ChannelsDataSize(channelCount, bufferLength, sampleWordSize)
	channels, err := shmem.Create(channelsFilePath(staging), channelBytes)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("flowfs: create channel buffer: %w", err)
	}

	dest := flowDirPath(m.domain, id)
	if err := publish(staging, dest); err != nil {
		region.Close()
		channels.Close()
		return nil, err
	}
	ok = true

	m.logger.Debug("published continuous flow", "id", id, "channels", channelCount, "bufferLength", bufferLength)
	return &ContinuousFlow{Dir: dest, Header: hdr, region: region, Channels: channels}, nil
}

// OpenFlow opens an existing published flow. mode must be OpenReadWrite or
// OpenReadOnly; CreateReadWrite is rejected with ErrInvalidAccessMode.
// The returned value is either *DiscreteFlow or *ContinuousFlow, dispatched
// on the header's recorded format.
func (m *Manager) OpenFlow(id uuid.UUID, mode AccessMode) (any, error) {
	if mode == CreateReadWrite {
		return nil, fmt.Errorf("flowfs: open %s: %w", id, ErrInvalidAccessMode)
	}

	dir := flowDirPath(m.domain, id)
	if !dirExists(dir) {
		return nil, fmt.Errorf("flowfs: %s: %w", id, ErrNotFound)
	}
	touchFile(accessFilePath(dir))

	headerPeek, err := shmem.Open(dataFilePath(dir), mode, int64(minHeaderSize()))
	if err != nil {
		return nil, fmt.Errorf("flowfs: open header region for %s: %w", id, err)
	}

	peekRegion, err := shmem.NewTypedRegion[headerPrefix](headerPeek)
	if err != nil {
		headerPeek.Close()
		return nil, fmt.Errorf("flowfs: peek header for %s: %w", id, err)
	}
	format := peekRegion.Header().Common.Format()
	headerPeek.Close()

	switch {
	case format.IsDiscrete():
		return m.openDiscreteFlow(id, dir, mode)
	case format.IsContinuous():
		return m.openContinuousFlow(id, dir, mode)
	default:
		return nil, fmt.Errorf("flowfs: %s: %w", id, ErrUnsupportedFormat)
	}
}

func (m *Manager) openDiscreteFlow(id uuid.UUID, dir string, mode AccessMode) (*DiscreteFlow, error) {
	headerMapping, err := shmem.Open(dataFilePath(dir), mode, int64(sizeOfDiscreteHeader()))
	if err != nil {
		return nil, fmt.Errorf("flowfs: open discrete header for %s: %w", id, err)
	}
	region, err := shmem.NewTypedRegion[DiscreteHeader](headerMapping)
	if err != nil {
		headerMapping.Close()
		return nil, fmt.Errorf("flowfs: overlay discrete header for %s: %w", id, err)
	}
	hdr := region.Header()
	if size := hdr.Size(); size < uint32(sizeOfDiscreteHeader()) {
		region.Close()
		return nil, fmt.Errorf("flowfs: discrete header for %s (size=%d, want>=%d): %w", id, size, sizeOfDiscreteHeader(), ErrHeaderTooSmall)
	}

	grainCount := hdr.Discrete.GrainCount()
	grains := make([]*shmem.Mapping, 0, grainCount)
	for slot := uint32(0); slot < grainCount; slot++ {
		g, err := shmem.Open(grainFilePath(dir, slot), mode, int64(grainHeaderSize()))
		if err != nil {
			region.Close()
			for _, prior := range grains {
				prior.Close()
			}
			return nil, fmt.Errorf("flowfs: open grain slot %d for %s: %w", slot, id, err)
		}
		grains = append(grains, g)
	}

	return &DiscreteFlow{Dir: dir, Header: hdr, region: region, Grains: grains}, nil
}

func (m *Manager) openContinuousFlow(id uuid.UUID, dir string, mode AccessMode) (*ContinuousFlow, error) {
	headerMapping, err := shmem.Open(dataFilePath(dir), mode, int64(sizeOfContinuousHeader()))
	if err != nil {
		return nil, fmt.Errorf("flowfs: open continuous header for %s: %w", id, err)
	}
	region, err := shmem.NewTypedRegion[ContinuousHeader](headerMapping)
	if err != nil {
		headerMapping.Close()
		return nil, fmt.Errorf("flowfs: overlay continuous header for %s: %w", id, err)
	}
	hdr := region.Header()
	if size := hdr.Size(); size < uint32(sizeOfContinuousHeader()) {
		region.Close()
		return nil, fmt.Errorf("flowfs: continuous header for %s (size=%d, want>=%d): %w", id, size, sizeOfContinuousHeader(), ErrHeaderTooSmall)
	}

	channelBytes := ChannelsDataSize(hdr.Continuous.ChannelCount(), hdr.Continuous.BufferLength(), hdr.Continuous.SampleWordSize())
	channels, err := shmem.Open(channelsFilePath(dir), mode, channelBytes)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("flowfs: open channel buffer for %s: %w", id, err)
	}

	return &ContinuousFlow{Dir: dir, Header: hdr, region: region, Channels: channels}, nil
}

// ListFlows enumerates published flows under the domain, dropping entries
// whose stem does not parse as a UUID.
func (m *Manager) ListFlows() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(m.domain)
	if err != nil {
		return nil, fmt.Errorf("flowfs: list %s: %w", m.domain, err)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := parseFlowDirName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteFlow removes the entire flow directory recursively. It returns false
// (never an error) if nothing was removed, and logs filesystem errors rather
// than propagating them: deletion always reduces to a boolean result.
func (m *Manager) DeleteFlow(id uuid.UUID) bool {
	dir := flowDirPath(m.domain, id)
	if !dirExists(dir) {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error("delete flow failed", "id", id, "error", err)
		return false
	}
	return true
}

// AccessTime touches a published flow's access marker without opening its
// data region, for callers that only need to mark a flow as recently used
// without paying for a full mapping (the opt-in GC sweep).
func (m *Manager) AccessTime(id uuid.UUID) error {
	dir := flowDirPath(m.domain, id)
	if !dirExists(dir) {
		return fmt.Errorf("flowfs: %s: %w", id, ErrNotFound)
	}
	return touchFile(accessFilePath(dir))
}

func initCommonFlowInfo(c *CommonFlowInfo, id uuid.UUID, format DataFormat) {
	raw := id
	c.SetID(raw)
	now := uint64(mxltime.Now())
	c.SetLastWriteTime(now)
	c.SetLastReadTime(now)
	c.SetFormat(format)
	c.SetWriterPID(uint32(os.Getpid()))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
