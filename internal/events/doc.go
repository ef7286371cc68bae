// Package events fans out progress and lifecycle notifications from the
// pipeline worker to observers such as the CLI status view.
//
// The Hub keeps a bounded ring of recent events with monotonically increasing
// sequence numbers so a late observer can catch up, and blocks Fetch callers
// until new events arrive. Publishing never blocks on readers.
package events
