// Package services holds cross-cutting helpers shared by the external tool
// clients and pipeline stages: sentinel error markers with stage-aware
// wrapping, failure-to-status classification, and context carriers for item,
// stage, and correlation identifiers that feed structured logging.
package services
