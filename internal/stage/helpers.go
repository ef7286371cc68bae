package stage

import (
	"fmt"
	"os/exec"
	"path/filepath"
)

// ItemWorkDir returns the per-item staging directory under stagingDir.
func ItemWorkDir(stagingDir string, itemID int64) string {
	return filepath.Join(stagingDir, fmt.Sprintf("item-%d", itemID))
}

// BinaryHealth resolves a required external binary and returns a Health
// record suitable for HealthCheck implementations.
func BinaryHealth(stageName, binary string) Health {
	if binary == "" {
		return Unhealthy(stageName, "binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return Unhealthy(stageName, fmt.Sprintf("%s not found in PATH", binary))
	}
	return Healthy(stageName)
}
