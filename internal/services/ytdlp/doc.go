// Package ytdlp shells out to yt-dlp for remote audio probing and download.
//
// Downloads present as different client identities in a fixed fallback order;
// failures whose output matches a known retryable marker move to the next
// identity instead of surfacing. Audio is always post-processed to 16 kHz
// mono WAV so the rest of the pipeline sees one input shape.
package ytdlp
