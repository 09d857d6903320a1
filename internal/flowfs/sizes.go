package flowfs

import "unsafe"

func sizeOfDiscreteHeader() int   { return int(unsafe.Sizeof(DiscreteHeader{})) }
func sizeOfContinuousHeader() int { return int(unsafe.Sizeof(ContinuousHeader{})) }
func minHeaderSize() int          { return int(unsafe.Sizeof(headerPrefix{})) }
func grainHeaderSize() int        { return int(unsafe.Sizeof(GrainSlotHeader{})) }

// ChannelHeadTableSize is the size in bytes of the per-channel writeHead
// table stored at the front of a continuous flow's channels.data file: one
// atomic uint64 per channel.
func ChannelHeadTableSize(channelCount uint32) int64 {
	return int64(channelCount) * 8
}

// ChannelPayloadSize is the total sample storage across all channels,
// excluding the writeHead table: channelCount rings of bufferLength samples
// of sampleWordSize bytes each.
func ChannelPayloadSize(channelCount, bufferLength, sampleWordSize uint32) int64 {
	return int64(channelCount) * int64(bufferLength) * int64(sampleWordSize)
}

// ChannelsDataSize is the total size of a continuous flow's channels.data
// file: the writeHead table followed by the channel payload area.
func ChannelsDataSize(channelCount, bufferLength, sampleWordSize uint32) int64 {
	return ChannelHeadTableSize(channelCount) + ChannelPayloadSize(channelCount, bufferLength, sampleWordSize)
}
