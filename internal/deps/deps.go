// Package deps reports the availability of the external tools a run needs.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"penman/internal/config"
)

// Requirement defines an external tool Penman shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional tools degrade features instead of blocking a run. yt-dlp is
	// optional until a remote item is queued.
	Optional bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the tools the configured pipeline will execute.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "ffmpeg", Command: cfg.FFmpegBinary(), Description: "Audio conversion and segmenting"},
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "Audio inspection"},
		{Name: "whisper", Command: cfg.WhisperBinary(), Description: "Speech-to-text inference"},
		{Name: "yt-dlp", Command: cfg.YtdlpBinary(), Description: "Remote audio download", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional tools.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
