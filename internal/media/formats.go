// Package media holds shared media-file helpers for the pipeline.
package media

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// supportedInputExtensions lists the container/codec extensions ffmpeg is
// asked to handle. Anything else is rejected before processing starts.
var supportedInputExtensions = map[string]struct{}{
	"mp3":  {},
	"wav":  {},
	"m4a":  {},
	"flac": {},
	"ogg":  {},
	"webm": {},
	"mp4":  {},
	"mkv":  {},
	"mov":  {},
	"avi":  {},
}

// SupportedInputExtensions returns the accepted input extensions in sorted
// order, without leading dots.
func SupportedInputExtensions() []string {
	exts := make([]string, 0, len(supportedInputExtensions))
	for ext := range supportedInputExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ValidateInputPath checks that the file's extension names a supported input
// format.
func ValidateInputPath(path string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return fmt.Errorf("input file has no extension: %s", filepath.Base(path))
	}
	if _, ok := supportedInputExtensions[ext]; !ok {
		return fmt.Errorf("unsupported input format .%s (supported: %s)",
			ext, strings.Join(SupportedInputExtensions(), ", "))
	}
	return nil
}
