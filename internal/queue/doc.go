// Package queue persists transcription work items in SQLite and exposes
// helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, duplicate
// rejection on normalized sources, explicit queue ordering, the atomic claim
// used by the single pipeline worker, and bulk retry of failed items. Items
// capture progress, remote-source metadata, and per-stage timing so the
// workflow and CLI can coordinate without additional state.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
