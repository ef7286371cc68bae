// Package progress maps stage-local progress onto the unified per-item and
// batch scales observers see.
package progress

import (
	"fmt"
	"time"
)

// Remote items spend the first slice of their unified scale on acquisition;
// everything after the download lands in the processing share. Local items
// have no acquisition phase and use the whole scale for processing.
const (
	remoteAcquireShare = 30.0
	remoteProcessShare = 70.0
)

// Phase identifies which part of an item's pipeline is reporting.
type Phase int

const (
	PhaseAcquire Phase = iota
	PhaseProcess
)

// ItemPercent converts a phase-local fraction (0.0-1.0) into the item's
// unified 0-100 percent.
func ItemPercent(remote bool, phase Phase, fraction float64) float64 {
	fraction = clampFraction(fraction)
	if !remote {
		return fraction * 100
	}
	switch phase {
	case PhaseAcquire:
		return fraction * remoteAcquireShare
	default:
		return remoteAcquireShare + fraction*remoteProcessShare
	}
}

// ProcessFraction folds per-segment progress into one processing fraction:
// completed segments count fully, the active segment contributes its own
// fraction.
func ProcessFraction(segmentIndex, segmentCount int, segmentFraction float64) float64 {
	if segmentCount <= 0 {
		return 0
	}
	if segmentIndex < 0 {
		segmentIndex = 0
	}
	if segmentIndex >= segmentCount {
		return 1
	}
	return (float64(segmentIndex) + clampFraction(segmentFraction)) / float64(segmentCount)
}

// BatchPercent folds the current item's percent into overall batch progress.
// Completed items count as full; the result is monotone as long as item
// percents are.
func BatchPercent(completed, total int, currentItemPercent float64) float64 {
	if total <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	if currentItemPercent < 0 {
		currentItemPercent = 0
	}
	if currentItemPercent > 100 {
		currentItemPercent = 100
	}
	return (float64(completed)*100 + currentItemPercent) / float64(total)
}

func clampFraction(fraction float64) float64 {
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// Tracker estimates time remaining from elapsed wall time and percent done.
type Tracker struct {
	start time.Time
	now   func() time.Time
}

// NewTracker starts a tracker at the current time.
func NewTracker() *Tracker {
	return &Tracker{start: time.Now(), now: time.Now}
}

// newTrackerAt is the test hook with an injectable clock.
func newTrackerAt(start time.Time, now func() time.Time) *Tracker {
	return &Tracker{start: start, now: now}
}

// ETA extrapolates remaining time from the ratio of elapsed time to percent
// complete. Returns false until enough progress exists for a usable estimate.
func (t *Tracker) ETA(percent float64) (time.Duration, bool) {
	if t == nil || percent <= 1 || percent > 100 {
		return 0, false
	}
	elapsed := t.now().Sub(t.start)
	if elapsed <= 0 {
		return 0, false
	}
	totalEstimate := time.Duration(float64(elapsed) * 100 / percent)
	remaining := totalEstimate - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// FormatETA renders a remaining duration for progress messages.
func FormatETA(remaining time.Duration) string {
	remaining = remaining.Round(time.Second)
	if remaining >= time.Hour {
		hours := int(remaining.Hours())
		minutes := int(remaining.Minutes()) % 60
		return fmt.Sprintf("%dh%02dm remaining", hours, minutes)
	}
	if remaining >= time.Minute {
		minutes := int(remaining.Minutes())
		seconds := int(remaining.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds remaining", minutes, seconds)
	}
	return fmt.Sprintf("%ds remaining", int(remaining.Seconds()))
}
