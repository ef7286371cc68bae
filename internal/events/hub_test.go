package events_test

import (
	"context"
	"testing"
	"time"

	"penman/internal/events"
	"penman/internal/queue"
)

func TestHubAssignsSequencesAndFetches(t *testing.T) {
	hub := events.NewHub(16)

	hub.Progress("run-1", 1, "download", 10, "")
	hub.Progress("run-1", 1, "download", 25, "")
	hub.Lifecycle("run-1", 1, queue.StatusCompleted, "")

	got, next, err := hub.Fetch(context.Background(), 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, evt := range got {
		if evt.Sequence != uint64(i+1) {
			t.Fatalf("unexpected sequence at %d: %d", i, evt.Sequence)
		}
	}
	if got[2].Type != events.TypeLifecycle || got[2].Status != queue.StatusCompleted {
		t.Fatalf("unexpected final event: %+v", got[2])
	}
	if next != 3 {
		t.Fatalf("unexpected next sequence: %d", next)
	}

	// Nothing newer than the returned cursor.
	again, _, err := hub.Fetch(context.Background(), next, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new events, got %d", len(again))
	}
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := events.NewHub(2)
	hub.Progress("run-1", 1, "download", 10, "")
	hub.Progress("run-1", 1, "download", 20, "")
	hub.Progress("run-1", 1, "download", 30, "")

	tail, _ := hub.Tail(10)
	if len(tail) != 2 {
		t.Fatalf("expected capacity-bound tail, got %d", len(tail))
	}
	if hub.FirstSequence() != 2 {
		t.Fatalf("expected first sequence 2, got %d", hub.FirstSequence())
	}
}

func TestHubFetchWaitUnblocksOnPublish(t *testing.T) {
	hub := events.NewHub(8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, _, err := hub.Fetch(context.Background(), 0, 10, true)
		if err != nil {
			t.Errorf("Fetch: %v", err)
			return
		}
		if len(got) != 1 || got[0].Stage != "segment" {
			t.Errorf("unexpected events: %+v", got)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Progress("run-1", 5, "segment", 50, "")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not unblock after publish")
	}
}

func TestHubFetchWaitHonorsContext(t *testing.T) {
	hub := events.NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

type captureSink struct {
	events []events.Event
}

func (c *captureSink) Append(evt events.Event) {
	c.events = append(c.events, evt)
}

func TestHubForwardsToSinks(t *testing.T) {
	hub := events.NewHub(8)
	sink := &captureSink{}
	hub.AddSink(sink)

	hub.Lifecycle("run-1", 3, queue.StatusFailed, "all strategies exhausted")
	if len(sink.events) != 1 {
		t.Fatalf("expected sink to receive event, got %d", len(sink.events))
	}
	if sink.events[0].Error == "" {
		t.Fatal("expected error message on lifecycle event")
	}
}
