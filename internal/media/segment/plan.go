package segment

import "math"

// Segment is one bounded slice of an item's audio. StartOffsetSeconds is the
// slice's position in the original recording so per-segment timestamps can be
// shifted back to absolute time.
type Segment struct {
	Index              int
	StartOffsetSeconds float64
	DurationSeconds    float64
	LocalFilePath      string
}

// Plan computes the segment boundaries for a recording of totalSeconds split
// into chunks of at most maxSeconds. Input at or under the limit yields a
// single segment covering the whole recording.
func Plan(totalSeconds float64, maxSeconds int) []Segment {
	if totalSeconds <= 0 {
		return nil
	}
	limit := float64(maxSeconds)
	if maxSeconds <= 0 || totalSeconds <= limit {
		return []Segment{{Index: 0, StartOffsetSeconds: 0, DurationSeconds: totalSeconds}}
	}

	count := int(math.Ceil(totalSeconds / limit))
	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * limit
		duration := limit
		if start+duration > totalSeconds {
			duration = totalSeconds - start
		}
		segments = append(segments, Segment{
			Index:              i,
			StartOffsetSeconds: start,
			DurationSeconds:    duration,
		})
	}
	return segments
}
