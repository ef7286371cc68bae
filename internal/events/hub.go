package events

import (
	"context"
	"sync"
	"time"

	"penman/internal/queue"
)

// Type distinguishes the two event families published during a run.
type Type string

const (
	TypeProgress  Type = "progress"
	TypeLifecycle Type = "lifecycle"
)

// Event is a single observer-visible notification. Progress events carry
// Stage/Percent/Message; lifecycle events carry Status and an optional Error.
type Event struct {
	Sequence  uint64       `json:"seq"`
	Timestamp time.Time    `json:"ts"`
	Type      Type         `json:"type"`
	RunID     string       `json:"run_id,omitempty"`
	ItemID    int64        `json:"item_id"`
	Stage     string       `json:"stage,omitempty"`
	Percent   float64      `json:"percent,omitempty"`
	Message   string       `json:"message,omitempty"`
	Status    queue.Status `json:"status,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Sink receives every published event (for persistence, logging, etc.).
type Sink interface {
	Append(Event)
}

// Hub stores recent events and wakes waiters when new events arrive. Observers
// poll with Fetch using the last sequence they saw; the worker publishes
// without blocking on slow readers.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	sinks    []Sink
}

// NewHub constructs a bounded in-memory event fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires an additional sink that receives every published event.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends a new event to the hub.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	sinks := append([]Sink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// Progress publishes a progress event for an item.
func (h *Hub) Progress(runID string, itemID int64, stage string, percent float64, message string) {
	h.Publish(Event{
		Type:    TypeProgress,
		RunID:   runID,
		ItemID:  itemID,
		Stage:   stage,
		Percent: percent,
		Message: message,
	})
}

// Lifecycle publishes a status transition event for an item.
func (h *Hub) Lifecycle(runID string, itemID int64, status queue.Status, errMessage string) {
	h.Publish(Event{
		Type:   TypeLifecycle,
		RunID:  runID,
		ItemID: itemID,
		Status: status,
		Error:  errMessage,
	})
}

// Fetch returns all events with sequence greater than since. When wait is true,
// Fetch blocks until at least one event is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *Hub) Tail(limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *Hub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	startIdx := 0
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
		if i == len(h.buffer)-1 {
			return nil, h.nextSeq
		}
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, h.nextSeq
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
