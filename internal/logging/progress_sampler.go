package logging

import (
	"math"
	"strings"
)

// ProgressSampler suppresses repetitive progress logs, letting events through
// when the stage changes or the percent crosses a bucket boundary.
type ProgressSampler struct {
	bucket float64
	stage  string
	seen   int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent points. Non-positive widths fall back to 5.
func NewProgressSampler(bucket float64) *ProgressSampler {
	if bucket <= 0 {
		bucket = 5
	}
	return &ProgressSampler{bucket: bucket, seen: -1}
}

// ShouldLog reports whether this progress event carries new information.
// Percent may be negative for "unknown". Stage transitions always emit and
// restart the bucket sequence. Messages are not deduplicated since they tend
// to carry volatile detail like ETA.
func (s *ProgressSampler) ShouldLog(percent float64, stage, _ string) bool {
	if s == nil {
		return true
	}

	emit := false
	if trimmed := strings.TrimSpace(stage); trimmed != "" && trimmed != s.stage {
		s.stage = trimmed
		s.seen = -1
		emit = true
	}

	if percent >= 0 {
		bucket := int(math.Min(percent, 100) / s.bucket)
		if bucket > s.seen {
			s.seen = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state when a new item starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage = ""
	s.seen = -1
}
