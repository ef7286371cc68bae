// Package acquire turns a remote source reference into a local audio file.
//
// A Runner walks a fixed chain of download strategies, each presenting as a
// different client identity, stopping at the first playable result. Retryable
// failures advance the chain silently; exhaustion surfaces every recorded
// cause so the queue item's error tells the operator what was tried.
package acquire
