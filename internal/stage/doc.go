// Package stage defines the contract between the workflow manager and the
// pipeline stages that move a queue item from source to finished transcript.
package stage
