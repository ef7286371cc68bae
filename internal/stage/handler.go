package stage

import (
	"context"

	"penman/internal/media/segment"
	"penman/internal/queue"
	"penman/internal/transcript"
)

// Progress reports stage-local completion as a 0.0-1.0 fraction plus a short
// human-readable message.
type Progress func(fraction float64, message string)

// Job carries a claimed queue item and the working state the pipeline stages
// hand from one to the next.
type Job struct {
	Item *queue.Item

	// WorkDir is the per-item staging directory for segment files.
	WorkDir string
	// DownloadDir receives acquired remote audio.
	DownloadDir string

	// AudioPath is the file the segmenter reads. The acquirer sets it for
	// remote items; local items point at their source directly.
	AudioPath string

	Segments []segment.Segment
	Phrases  []transcript.Phrase
	Texts    []string
	// Languages holds the model-detected language of each transcribed
	// segment, in segment order.
	Languages []string

	Transcript *transcript.Transcript
	OutputPath string

	Report Progress
}

// ReportProgress forwards to the job's progress callback when one is set.
func (j *Job) ReportProgress(fraction float64, message string) {
	if j != nil && j.Report != nil {
		j.Report(fraction, message)
	}
}

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Name() string
	Prepare(context.Context, *Job) error
	Execute(context.Context, *Job) error
	HealthCheck(context.Context) Health
}
