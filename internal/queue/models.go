package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// SourceKind distinguishes local media files from remote references.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// RemotePrefix marks remote items in display labels.
const RemotePrefix = "[YT] "

// RemoteMetadata carries the probe result for a remote source. Fetched once
// during acquisition and attached to every downstream artifact.
type RemoteMetadata struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	Source          string
	SourceKind      SourceKind
	Title           string
	Status          Status
	Position        int64
	AudioFile       string
	OutputFile      string
	ErrorMessage    string
	MetadataJSON    string
	MetricsJSON     string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsRemote reports whether the item references remote media.
func (i Item) IsRemote() bool {
	return i.SourceKind == SourceRemote
}

// IsTerminal reports whether the item has finished processing.
func (i Item) IsTerminal() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// DisplayLabel returns the user-facing queue label, prefixed for remote items.
func (i Item) DisplayLabel() string {
	label := strings.TrimSpace(i.Title)
	if label == "" {
		label = strings.TrimSpace(i.Source)
	}
	if i.IsRemote() {
		return RemotePrefix + label
	}
	return label
}

// Metadata decodes the stored remote metadata, or returns nil when absent.
func (i Item) Metadata() *RemoteMetadata {
	raw := strings.TrimSpace(i.MetadataJSON)
	if raw == "" {
		return nil
	}
	var meta RemoteMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

// SetMetadata encodes and stores remote metadata on the item.
func (i *Item) SetMetadata(meta RemoteMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	i.MetadataJSON = string(data)
	return nil
}

// ItemMetrics records processing durations per stage and in total.
type ItemMetrics struct {
	StageSeconds map[string]float64 `json:"stage_seconds,omitempty"`
	TotalSeconds float64            `json:"total_seconds,omitempty"`
}

// Metrics decodes the stored processing metrics, or returns nil when absent.
func (i Item) Metrics() *ItemMetrics {
	raw := strings.TrimSpace(i.MetricsJSON)
	if raw == "" {
		return nil
	}
	var metrics ItemMetrics
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		return nil
	}
	return &metrics
}

// SetMetrics encodes and stores processing metrics on the item.
func (i *Item) SetMetrics(metrics ItemMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	i.MetricsJSON = string(data)
	return nil
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and
// ProgressMessage individually.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given error message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressMessage = message
	i.ProgressStage = "Failed"
}

// SetCancelled marks the item as cancelled, keeping whatever progress it reached.
func (i *Item) SetCancelled(message string) {
	i.Status = StatusCancelled
	i.ProgressStage = "Cancelled"
	i.ProgressMessage = message
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Failed    int
	Completed int
	Cancelled int
}
