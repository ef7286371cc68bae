// Package workflow drains the transcription queue through the pipeline
// stages.
//
// The Manager claims pending items one at a time and walks each through
// acquisition (remote sources only), segmentation, inference, and export,
// mapping stage-local progress onto the unified per-item and batch scales and
// persisting every transition back to the queue store. A file lock keeps a
// single active run per queue database.
//
// Run performs one batch pass and returns a summary; Start keeps a background
// worker polling for new items until Stop. The configured run policy decides
// whether an item failure ends the pass or processing moves on to the next
// pending item. Cancellation is observed at stage boundaries: the in-flight
// item is marked cancelled and everything behind it stays pending.
package workflow
