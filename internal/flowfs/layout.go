package flowfs

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	flowDirSuffix  = ".mxl-flow"
	tempDirPrefix  = ".mxl-tmp-"
	dataFileName   = "data"
	descriptorName = "flow.json"
	accessMarker   = ".mxl-flow-access"
	grainsDirName  = "grains"
	channelsFile   = "channels.data"

	// grainFileSuffix and the width of the zero-padded slot index in a
	// grain filename. The filename encodes the *slot* index, not the grain
	// index that currently occupies it.
	grainFileSuffix = ".grain"
	grainFileWidth  = 12
)

func flowDirName(id uuid.UUID) string {
	return id.String() + flowDirSuffix
}

func flowDirPath(domain string, id uuid.UUID) string {
	return filepath.Join(domain, flowDirName(id))
}

func dataFilePath(flowDir string) string {
	return filepath.Join(flowDir, dataFileName)
}

func descriptorFilePath(flowDir string) string {
	return filepath.Join(flowDir, descriptorName)
}

func accessFilePath(flowDir string) string {
	return filepath.Join(flowDir, accessMarker)
}

func grainsDirPath(flowDir string) string {
	return filepath.Join(flowDir, grainsDirName)
}

func channelsFilePath(flowDir string) string {
	return filepath.Join(flowDir, channelsFile)
}

func grainFilePath(flowDir string, slot uint32) string {
	return filepath.Join(grainsDirPath(flowDir), fmt.Sprintf("%0*d%s", grainFileWidth, slot, grainFileSuffix))
}

// parseFlowDirName extracts the FlowId encoded in a directory entry's name,
// returning ok=false if the entry does not carry the load-bearing
// .mxl-flow suffix or its stem is not a valid UUID.
func parseFlowDirName(name string) (uuid.UUID, bool) {
	if filepath.Ext(name) != flowDirSuffix {
		return uuid.UUID{}, false
	}
	stem := name[:len(name)-len(flowDirSuffix)]
	id, err := uuid.Parse(stem)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
