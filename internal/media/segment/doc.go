// Package segment plans and materializes bounded audio slices for inference.
//
// Plan is pure arithmetic over the probed duration; Splitter shells out to
// ffmpeg to produce the 16 kHz mono WAV files the model consumes. Segment
// offsets let downstream code shift per-segment timestamps back to absolute
// recording time.
package segment
