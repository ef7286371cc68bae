package workflow

import (
	"context"

	"penman/internal/logging"
	"penman/internal/queue"
	"penman/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastRun     Summary
	LastError   string
	LastItem    *queue.Item
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastItem := m.lastItem
	lastRun := m.lastRun
	m.mu.RUnlock()

	if lastRun.State == "" {
		lastRun.State = RunStateIdle
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	stages := m.stageFactory(true, m.loadModel())
	health := make(map[string]stage.Health, len(stages))
	for _, st := range stages {
		if st.handler == nil {
			continue
		}
		health[st.name] = st.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		LastRun:     lastRun,
		QueueStats:  stats,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastItem != nil {
		cp := *lastItem
		summary.LastItem = &cp
	}
	return summary
}
