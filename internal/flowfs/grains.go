package flowfs

import (
	"fmt"

	"github.com/moleksy/mxl/internal/shmem"
)

// createGrainSlot creates and stamps a single grain slot's backing file:
// a GrainSlotHeader immediately followed by payloadSize bytes of storage,
// initialized EMPTY (commitedSize=0, deviceIndex=-1, per the reference
// implementation's sentinel for "no device backing this slot").
func createGrainSlot(path string, payloadSize uint32) (*shmem.Mapping, error) {
	total := int64(grainHeaderSize()) + int64(payloadSize)
	m, err := shmem.Create(path, total)
	if err != nil {
		return nil, fmt.Errorf("flowfs: create grain slot file: %w", err)
	}
	region, err := shmem.NewTypedRegion[GrainSlotHeader](m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("flowfs: overlay grain slot header: %w", err)
	}
	hdr := region.Header()
	hdr.version = headerVersion
	hdr.size = uint32(grainHeaderSize())
	hdr.grainSize = payloadSize
	hdr.SetCommitedSize(0)
	// index is left at 0 rather than an UNDEFINED sentinel: OpenGrain only
	// compares indices when commitedSize > 0, and GetGrain only returns a
	// grain when commitedSize > 0 and reports out-of-range only for a held
	// index above the requested one, which 0 never is.
	hdr.SetIndex(0)
	hdr.SetDeviceIndex(-1)
	return m, nil
}

// openHeaderPrefix opens just the shared headerPrefix of a flow's data file,
// enough to read the format tag and common fields without committing to a
// discrete or continuous overlay.
func openHeaderPrefix(path string) (*shmem.TypedRegion[headerPrefix], error) {
	mapping, err := shmem.Open(path, shmem.OpenReadOnly, int64(minHeaderSize()))
	if err != nil {
		return nil, fmt.Errorf("flowfs: open header prefix: %w", err)
	}
	region, err := shmem.NewTypedRegion[headerPrefix](mapping)
	if err != nil {
		mapping.Close()
		return nil, fmt.Errorf("flowfs: overlay header prefix: %w", err)
	}
	return region, nil
}
