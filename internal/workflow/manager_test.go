package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"penman/internal/config"
	"penman/internal/events"
	"penman/internal/logging"
	"penman/internal/progress"
	"penman/internal/queue"
	"penman/internal/services/whisper"
	"penman/internal/stage"
	"penman/internal/testsupport"
)

type fakeHandler struct {
	name    string
	execute func(ctx context.Context, job *stage.Job) error
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Prepare(ctx context.Context, job *stage.Job) error { return nil }

func (f *fakeHandler) Execute(ctx context.Context, job *stage.Job) error {
	if f.execute != nil {
		return f.execute(ctx, job)
	}
	return nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(f.name)
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, execute func(ctx context.Context, job *stage.Job) error) *Manager {
	t.Helper()
	m := NewManager(cfg, store, logging.NewNop(), events.NewHub(0))
	m.stageFactory = func(remote bool, model *whisper.Model) []pipelineStage {
		return []pipelineStage{{
			name:    "work",
			handler: &fakeHandler{name: "work", execute: execute},
			phase:   progress.PhaseProcess,
			fracEnd: 1,
		}}
	}
	return m
}

func enqueueLocalItems(t *testing.T, store *queue.Store, names ...string) []*queue.Item {
	t.Helper()
	dir := t.TempDir()
	items := make([]*queue.Item, 0, len(names))
	for _, name := range names {
		items = append(items, testsupport.Enqueue(t, store, filepath.Join(dir, name), queue.SourceLocal))
	}
	return items
}

func TestRunProcessesItemsInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	items := enqueueLocalItems(t, store, "a.mp3", "b.mp3", "c.mp3")

	var processed []string
	m := newTestManager(t, cfg, store, func(ctx context.Context, job *stage.Job) error {
		processed = append(processed, filepath.Base(job.Item.Source))
		job.ReportProgress(0.5, "halfway")
		return nil
	})

	summary, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.State != RunStateCompleted {
		t.Fatalf("unexpected run state: %s", summary.State)
	}
	if summary.ItemsCompleted != 3 || summary.ItemsFailed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	want := []string{"a.mp3", "b.mp3", "c.mp3"}
	for i, name := range want {
		if processed[i] != name {
			t.Fatalf("processed order %v, want %v", processed, want)
		}
	}
	for _, item := range items {
		got, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != queue.StatusCompleted {
			t.Fatalf("item %d status %s, want completed", item.ID, got.Status)
		}
		if got.ProgressPercent != 100 {
			t.Fatalf("item %d percent %f, want 100", item.ID, got.ProgressPercent)
		}
		metrics := got.Metrics()
		if metrics == nil {
			t.Fatalf("item %d has no metrics", item.ID)
		}
		if _, ok := metrics.StageSeconds["work"]; !ok {
			t.Fatalf("item %d metrics missing stage entry: %+v", item.ID, metrics)
		}
	}
}

func TestRunBatchProgressIsMonotone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	enqueueLocalItems(t, store, "a.mp3", "b.mp3")

	m := newTestManager(t, cfg, store, func(ctx context.Context, job *stage.Job) error {
		job.ReportProgress(0.25, "quarter")
		job.ReportProgress(0.75, "three quarters")
		return nil
	})

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evts, _ := m.Hub().Tail(100)
	prev := -1.0
	var batchEvents int
	for _, evt := range evts {
		if evt.Stage != "batch" {
			continue
		}
		batchEvents++
		if evt.Percent < prev {
			t.Fatalf("batch percent regressed: %f after %f", evt.Percent, prev)
		}
		prev = evt.Percent
	}
	if batchEvents == 0 {
		t.Fatal("expected batch progress events")
	}
}

func TestRunStopPolicyLeavesLaterItemsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRunPolicy(config.RunPolicyStop), testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	items := enqueueLocalItems(t, store, "a.mp3", "b.mp3", "c.mp3")

	m := newTestManager(t, cfg, store, func(ctx context.Context, job *stage.Job) error {
		if filepath.Base(job.Item.Source) == "b.mp3" {
			return errors.New("inference exploded")
		}
		return nil
	})

	summary, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.State != RunStateStoppedOnError {
		t.Fatalf("unexpected run state: %s", summary.State)
	}
	if summary.ItemsCompleted != 1 || summary.ItemsFailed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	statuses := make([]queue.Status, 0, 3)
	for _, item := range items {
		got, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		statuses = append(statuses, got.Status)
	}
	want := []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusPending}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses %v, want %v", statuses, want)
		}
	}
}

func TestRunContinuePolicyProcessesRemainingItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRunPolicy(config.RunPolicyContinue), testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	items := enqueueLocalItems(t, store, "a.mp3", "b.mp3", "c.mp3")

	m := newTestManager(t, cfg, store, func(ctx context.Context, job *stage.Job) error {
		if filepath.Base(job.Item.Source) == "b.mp3" {
			return errors.New("inference exploded")
		}
		return nil
	})

	summary, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.State != RunStateCompleted {
		t.Fatalf("unexpected run state: %s", summary.State)
	}
	if summary.ItemsCompleted != 2 || summary.ItemsFailed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	last, err := store.GetByID(context.Background(), items[2].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if last.Status != queue.StatusCompleted {
		t.Fatalf("expected final item completed, got %s", last.Status)
	}
}

func TestRunCancellationMarksCurrentItemCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	items := enqueueLocalItems(t, store, "a.mp3", "b.mp3", "c.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestManager(t, cfg, store, func(ctx context.Context, job *stage.Job) error {
		if filepath.Base(job.Item.Source) == "b.mp3" {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	summary, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.State != RunStateCancelled {
		t.Fatalf("unexpected run state: %s", summary.State)
	}
	if summary.ItemsCompleted != 1 || summary.ItemsCancelled != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	second, err := store.GetByID(context.Background(), items[1].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if second.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", second.Status)
	}
	third, err := store.GetByID(context.Background(), items[2].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if third.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", third.Status)
	}
}

func TestRunResetsStuckRunningItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	enqueueLocalItems(t, store, "a.mp3")

	// Simulate a crashed run leaving the item claimed.
	if _, err := store.ClaimNextPending(context.Background()); err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}

	m := newTestManager(t, cfg, store, nil)
	summary, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ItemsCompleted != 1 {
		t.Fatalf("expected stuck item to be reprocessed, got %+v", summary)
	}
}

func TestRunRefusesSecondActiveRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	other := flock.New(filepath.Join(cfg.Paths.LogDir, "penman.lock"))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock for test: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	m := newTestManager(t, cfg, store, nil)
	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestStatusReportsQueueAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	enqueueLocalItems(t, store, "a.mp3", "b.mp3")

	m := newTestManager(t, cfg, store, nil)
	status := m.Status(context.Background())
	if status.Running {
		t.Fatal("expected idle manager")
	}
	if status.LastRun.State != RunStateIdle {
		t.Fatalf("unexpected run state: %s", status.LastRun.State)
	}
	if status.QueueStats[queue.StatusPending] != 2 {
		t.Fatalf("unexpected stats: %+v", status.QueueStats)
	}
	health, ok := status.StageHealth["work"]
	if !ok || !health.Ready {
		t.Fatalf("unexpected stage health: %+v", status.StageHealth)
	}
}
