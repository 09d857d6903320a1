package flowfs

import (
	"sync/atomic"
)

// DataFormat tags the media kind carried by a flow.
type DataFormat uint32

const (
	DataFormatUnspecified DataFormat = iota
	DataFormatVideo
	DataFormatAudio
	DataFormatData
)

// IsDiscrete reports whether format is carried by a grain ring (frame-based).
func (f DataFormat) IsDiscrete() bool {
	switch f {
	case DataFormatVideo, DataFormatData:
		return true
	default:
		return false
	}
}

// IsContinuous reports whether format is carried by a channel buffer
// (sample-based).
func (f DataFormat) IsContinuous() bool {
	return f == DataFormatAudio
}

func (f DataFormat) String() string {
	switch f {
	case DataFormatVideo:
		return "video"
	case DataFormatAudio:
		return "audio"
	case DataFormatData:
		return "data"
	default:
		return "unspecified"
	}
}

// headerVersion is stamped into every FlowInfo header for forward-compatible
// parsing; openFlow rejects a header whose declared Size is smaller than the
// Go struct's expected size for its kind.
const headerVersion uint32 = 1

// Rational mirrors mxltime.Rational in a fixed on-disk layout (plain
// uint32 pair, no atomics: it is written once at creation and never mutated).
type Rational struct {
	Numerator   uint32
	Denominator uint32
}

// CommonFlowInfo is the header prefix shared by discrete and continuous
// flows. Fields mutated after creation use atomic accessors since arbitrary
// processes may read them concurrently with the single writer.
type CommonFlowInfo struct {
	lastWriteTime uint64 // atomic: Timestamp
	lastReadTime  uint64 // atomic: Timestamp
	id            [16]byte
	format        uint32 // atomic-read at open, written once at create
	writerPID     uint32 // GC hook (F.4): 0 if unknown
}

func (c *CommonFlowInfo) LastWriteTime() uint64     { return atomic.LoadUint64(&c.lastWriteTime) }
func (c *CommonFlowInfo) SetLastWriteTime(v uint64) { atomic.StoreUint64(&c.lastWriteTime, v) }
func (c *CommonFlowInfo) LastReadTime() uint64      { return atomic.LoadUint64(&c.lastReadTime) }
func (c *CommonFlowInfo) SetLastReadTime(v uint64)  { atomic.StoreUint64(&c.lastReadTime, v) }
func (c *CommonFlowInfo) Format() DataFormat {
	return DataFormat(atomic.LoadUint32(&c.format))
}
func (c *CommonFlowInfo) SetFormat(f DataFormat) { atomic.StoreUint32(&c.format, uint32(f)) }
func (c *CommonFlowInfo) ID() [16]byte            { return c.id }
func (c *CommonFlowInfo) SetID(id [16]byte)       { c.id = id }
func (c *CommonFlowInfo) WriterPID() uint32       { return atomic.LoadUint32(&c.writerPID) }
func (c *CommonFlowInfo) SetWriterPID(pid uint32) { atomic.StoreUint32(&c.writerPID, pid) }

// DiscreteFlowInfo is the header for a discrete (grain-based) flow, laid out
// after DiscreteHeader's embedded CommonFlowInfo.
type DiscreteFlowInfo struct {
	syncCounter uint64 // atomic: bumped on every commit
	grainRateN  uint32
	grainRateD  uint32
	grainCount  uint32
	payloadSize uint32
}

func (d *DiscreteFlowInfo) SyncCounter() uint64 { return atomic.LoadUint64(&d.syncCounter) }
func (d *DiscreteFlowInfo) IncrementSyncCounter() uint64 {
	return atomic.AddUint64(&d.syncCounter, 1)
}
func (d *DiscreteFlowInfo) GrainRate() Rational {
	return Rational{Numerator: d.grainRateN, Denominator: d.grainRateD}
}
func (d *DiscreteFlowInfo) GrainCount() uint32  { return d.grainCount }
func (d *DiscreteFlowInfo) PayloadSize() uint32 { return d.payloadSize }

// ContinuousFlowInfo is the header for a continuous (sample-based) flow.
type ContinuousFlowInfo struct {
	syncCounter    uint64 // atomic: bumped on every commit
	sampleRateN    uint32
	sampleRateD    uint32
	channelCount   uint32
	sampleWordSize uint32
	bufferLength   uint32
}

func (c *ContinuousFlowInfo) SyncCounter() uint64 { return atomic.LoadUint64(&c.syncCounter) }
func (c *ContinuousFlowInfo) IncrementSyncCounter() uint64 {
	return atomic.AddUint64(&c.syncCounter, 1)
}
func (c *ContinuousFlowInfo) SampleRate() Rational {
	return Rational{Numerator: c.sampleRateN, Denominator: c.sampleRateD}
}
func (c *ContinuousFlowInfo) ChannelCount() uint32   { return c.channelCount }
func (c *ContinuousFlowInfo) SampleWordSize() uint32 { return c.sampleWordSize }
func (c *ContinuousFlowInfo) BufferLength() uint32   { return c.bufferLength }

// DiscreteHeader is the on-disk layout of a discrete flow's data file:
// version/size prefix, CommonFlowInfo, DiscreteFlowInfo.
type DiscreteHeader struct {
	version  uint32
	size     uint32
	Common   CommonFlowInfo
	Discrete DiscreteFlowInfo
}

func (h *DiscreteHeader) Version() uint32 { return atomic.LoadUint32(&h.version) }
func (h *DiscreteHeader) Size() uint32    { return atomic.LoadUint32(&h.size) }

// ContinuousHeader is the on-disk layout of a continuous flow's data file.
type ContinuousHeader struct {
	version    uint32
	size       uint32
	Common     CommonFlowInfo
	Continuous ContinuousFlowInfo
}

func (h *ContinuousHeader) Version() uint32 { return atomic.LoadUint32(&h.version) }
func (h *ContinuousHeader) Size() uint32    { return atomic.LoadUint32(&h.size) }

// headerPrefix is the layout shared by DiscreteHeader and ContinuousHeader up
// to and including CommonFlowInfo. OpenFlow overlays it on an unknown flow's
// data file just far enough to read the format tag and dispatch, before
// committing to a DiscreteHeader or ContinuousHeader overlay of the right size.
type headerPrefix struct {
	version uint32
	size    uint32
	Common  CommonFlowInfo
}

// GrainSlotHeader is the on-disk layout of a single grain file within a
// discrete flow's grains directory. internal/grain overlays the identical
// layout to implement ring semantics on top of the mappings flowfs opens.
type GrainSlotHeader struct {
	version      uint32
	size         uint32
	grainSize    uint32
	commitedSize uint32 // atomic: 0 while OPEN, payload length once COMMITTED
	index        uint64 // atomic: grain index currently occupying this slot
	deviceIndex  int32
}

func (g *GrainSlotHeader) Version() uint32     { return atomic.LoadUint32(&g.version) }
func (g *GrainSlotHeader) Size() uint32        { return atomic.LoadUint32(&g.size) }
func (g *GrainSlotHeader) GrainSize() uint32   { return atomic.LoadUint32(&g.grainSize) }
func (g *GrainSlotHeader) CommitedSize() uint32 {
	return atomic.LoadUint32(&g.commitedSize)
}
func (g *GrainSlotHeader) SetCommitedSize(v uint32) {
	atomic.StoreUint32(&g.commitedSize, v)
}
func (g *GrainSlotHeader) Index() uint64     { return atomic.LoadUint64(&g.index) }
func (g *GrainSlotHeader) SetIndex(v uint64) { atomic.StoreUint64(&g.index, v) }
func (g *GrainSlotHeader) DeviceIndex() int32 {
	return atomic.LoadInt32(&g.deviceIndex)
}
func (g *GrainSlotHeader) SetDeviceIndex(v int32) {
	atomic.StoreInt32(&g.deviceIndex, v)
}
