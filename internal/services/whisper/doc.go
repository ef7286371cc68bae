// Package whisper shells out to the whisper CLI for speech recognition.
//
// Model handles are cached per (model, device) pair; the pipeline worker
// loads one at batch start and reuses it for every segment. Output is parsed
// from the tool's JSON files into timed phrases.
package whisper
