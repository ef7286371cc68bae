package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"penman/internal/deps"
	"penman/internal/logging"
	"penman/internal/progress"
	"penman/internal/queue"
	"penman/internal/services"
)

// RunState describes the outcome of a batch run.
type RunState string

const (
	RunStateIdle           RunState = "idle"
	RunStateActive         RunState = "active"
	RunStateCompleted      RunState = "completed"
	RunStateStoppedOnError RunState = "stopped_on_error"
	RunStateCancelled      RunState = "cancelled"
)

// Summary records what a run did.
type Summary struct {
	RunID          string
	State          RunState
	StartedAt      time.Time
	Duration       time.Duration
	ItemsTotal     int
	ItemsCompleted int
	ItemsFailed    int
	ItemsCancelled int
}

// Run drains the pending queue in one pass. It returns once the queue is
// empty, the run policy stops it after a failure, or ctx is cancelled. The
// summary reports the outcome; the error covers run setup problems only.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	if err := m.acquireLock(); err != nil {
		return Summary{}, err
	}
	defer m.releaseLock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Summary{}, errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	summary, err := m.runBatch(ctx)
	m.setLastRun(summary)
	return summary, err
}

func (m *Manager) runBatch(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	summary := Summary{RunID: runID, State: RunStateActive, StartedAt: time.Now()}
	logger := m.logger.With(logging.String("run_id", runID))

	if reset, err := m.store.ResetStuckRunning(ctx); err != nil {
		logger.Warn("failed to reset stuck items", logging.Error(err))
	} else if reset > 0 {
		logger.Info("reset stuck items to pending", logging.Int("count", reset))
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		logger.Error("failed to read queue stats", logging.Error(err))
	}
	summary.ItemsTotal = stats[queue.StatusPending]
	if summary.ItemsTotal == 0 {
		summary.State = RunStateCompleted
		logger.Info("queue empty; nothing to do")
		return summary, nil
	}

	// Missing tools fail the run before any item is claimed.
	if missing := deps.MissingRequired(deps.CheckBinaries(deps.Requirements(m.cfg))); len(missing) > 0 {
		err := fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
		m.setLastError(err)
		logger.Error("cannot start run", logging.Error(err))
		summary.State = RunStateStoppedOnError
		summary.Duration = time.Since(summary.StartedAt)
		return summary, err
	}

	model := m.loadModel()
	rt := &runTracker{id: runID, total: summary.ItemsTotal, eta: progress.NewTracker()}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("items_total", summary.ItemsTotal),
		logging.String("model", model.Name()),
	)

loop:
	for {
		if ctx.Err() != nil {
			summary.State = RunStateCancelled
			break
		}

		item, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				summary.State = RunStateCancelled
				break
			}
			m.setLastError(err)
			logger.Error("failed to claim next queue item", logging.Error(err))
			select {
			case <-ctx.Done():
				summary.State = RunStateCancelled
				break loop
			case <-time.After(m.errorRetry):
			}
			continue
		}
		if item == nil {
			summary.State = RunStateCompleted
			break
		}
		m.setLastItem(item)

		stages := m.stageFactory(item.IsRemote(), model)
		procErr := m.processItem(ctx, rt, item, stages)
		rt.finished++

		switch {
		case procErr == nil:
			summary.ItemsCompleted++
		case services.IsCancellation(procErr) || ctx.Err() != nil:
			summary.ItemsCancelled++
			summary.State = RunStateCancelled
			break loop
		default:
			summary.ItemsFailed++
			if m.cfg.StopOnFirstError() {
				summary.State = RunStateStoppedOnError
				break loop
			}
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finish"),
		logging.String("state", string(summary.State)),
		logging.Int("items_completed", summary.ItemsCompleted),
		logging.Int("items_failed", summary.ItemsFailed),
		logging.Int("items_cancelled", summary.ItemsCancelled),
		logging.Duration("run_duration", summary.Duration),
	)
	return summary, nil
}

// Start launches a background worker that keeps polling the queue until Stop.
// Each drain pass follows the same policy rules as Run.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.acquireLock(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.releaseLock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.watch(runCtx)
	}()
	return nil
}

// Stop terminates background processing and waits for the worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.releaseLock()
}

func (m *Manager) watch(ctx context.Context) {
	for {
		summary, err := m.runBatch(ctx)
		m.setLastRun(summary)
		if err != nil {
			m.logger.Error("run pass failed", logging.Error(err))
		}
		switch summary.State {
		case RunStateCancelled:
			return
		case RunStateStoppedOnError:
			m.logger.Warn("run stopped on error; waiting for operator action")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval):
		}
	}
}
