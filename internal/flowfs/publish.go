package flowfs

import (
	"fmt"
	"os"
)

// stagingDir creates a uniquely-named temporary directory under domain,
// mkdtemp-style, that cannot collide with an established <uuid>.mxl-flow
// name (the .mxl-tmp- prefix is not a valid UUID stem).
func stagingDir(domain string) (string, error) {
	// os.MkdirTemp already guarantees uniqueness and atomicity of the
	// create; we only need the naming convention below.
	path, err := os.MkdirTemp(domain, tempDirPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("flowfs: create staging directory: %w", err)
	}
	return path, nil
}

// publish relaxes permissions on staging (group/other read+exec, matching
// r-x for group and other) and renames it into place as the
// commit point of flow creation. Rename is atomic on the same filesystem,
// which the domain directory always is by construction.
func publish(staging, dest string) error {
	if err := os.Chmod(staging, 0o755); err != nil {
		return fmt.Errorf("flowfs: relax permissions on %s: %w", staging, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("flowfs: publish %s -> %s: %w", staging, dest, err)
	}
	return nil
}

// rollback removes a staging directory that failed to reach publication. It
// never returns an error: it is always called from a defer/cleanup path
// where the original error already dominates.
func rollback(staging string) {
	_ = os.RemoveAll(staging)
}
