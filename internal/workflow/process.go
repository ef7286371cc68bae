package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"penman/internal/logging"
	"penman/internal/media/segment"
	"penman/internal/progress"
	"penman/internal/queue"
	"penman/internal/services"
	"penman/internal/stage"
	"penman/internal/textutil"
)

// runTracker carries the per-run counters the progress reporter folds into
// batch events.
type runTracker struct {
	id       string
	total    int
	finished int
	eta      *progress.Tracker
}

func (m *Manager) processItem(ctx context.Context, rt *runTracker, item *queue.Item, stages []pipelineStage) error {
	itemCtx := services.WithItemID(ctx, item.ID)
	start := time.Now()

	job := &stage.Job{
		Item:        item,
		WorkDir:     stage.ItemWorkDir(m.cfg.Paths.StagingDir, item.ID),
		DownloadDir: m.cfg.Paths.DownloadDir,
	}
	sampler := logging.NewProgressSampler(5)
	m.hub.Lifecycle(rt.id, item.ID, queue.StatusRunning, "")

	metrics := queue.ItemMetrics{StageSeconds: make(map[string]float64, len(stages))}
	var stageErr error
	for _, st := range stages {
		if ctx.Err() != nil {
			stageErr = ctx.Err()
			break
		}

		stageCtx := services.WithStage(services.WithRequestID(itemCtx, uuid.NewString()), st.name)
		stageLogger := logging.WithContext(stageCtx, m.logger)
		job.Report = m.progressReporter(rt, item, st, sampler, stageLogger)

		stageStart := time.Now()
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("source", item.Source),
		)

		if stageErr = st.handler.Prepare(stageCtx, job); stageErr != nil {
			break
		}
		if stageErr = st.handler.Execute(stageCtx, job); stageErr != nil {
			break
		}

		metrics.StageSeconds[st.name] = time.Since(stageStart).Seconds()
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
		if err := m.persistItem(item); err != nil {
			stageLogger.Warn("failed to persist stage result", logging.Error(err))
		}
	}

	m.cleanupJob(job)

	metrics.TotalSeconds = time.Since(start).Seconds()
	if err := item.SetMetrics(metrics); err != nil {
		m.logger.Warn("failed to encode item metrics", logging.Error(err))
	}

	if stageErr != nil {
		m.finishFailedItem(ctx, rt, item, stageErr)
		return stageErr
	}

	item.Status = queue.StatusCompleted
	item.SetProgress("Completed", fmt.Sprintf("Transcript written to %s", job.OutputPath), 100)
	if err := m.persistItem(item); err != nil {
		m.logger.Error("failed to persist completed item",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err),
		)
	}
	m.setLastItem(item)
	m.hub.Lifecycle(rt.id, item.ID, queue.StatusCompleted, "")
	logging.WithContext(itemCtx, m.logger).Info("item completed",
		logging.String(logging.FieldEventType, "item_complete"),
		logging.String("output", job.OutputPath),
		logging.Duration("item_duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) finishFailedItem(ctx context.Context, rt *runTracker, item *queue.Item, stageErr error) {
	status := services.FailureStatus(stageErr)
	if ctx.Err() != nil {
		status = queue.StatusCancelled
	}
	if status == queue.StatusCancelled {
		item.SetCancelled("run cancelled")
	} else {
		item.SetFailed(failureMessage(stageErr))
	}
	if err := m.persistItem(item); err != nil {
		m.logger.Error("failed to persist item failure",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err),
		)
	}
	m.setLastItem(item)
	m.setLastError(stageErr)
	m.hub.Lifecycle(rt.id, item.ID, item.Status, item.ErrorMessage)

	logger := logging.WithContext(services.WithItemID(ctx, item.ID), m.logger)
	if item.Status == queue.StatusCancelled {
		logger.Info("item cancelled", logging.String(logging.FieldEventType, "item_cancelled"))
		return
	}
	logger.Error("item failed",
		logging.String(logging.FieldEventType, "item_failed"),
		logging.String("error_message", item.ErrorMessage),
		logging.Error(stageErr),
	)
}

func failureMessage(err error) string {
	if err == nil {
		return "failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "failed without error detail"
	}
	return message
}

// progressReporter maps a stage-local fraction onto the item and batch
// scales, persists sampled updates, and publishes events.
func (m *Manager) progressReporter(rt *runTracker, item *queue.Item, st pipelineStage, sampler *logging.ProgressSampler, logger *slog.Logger) stage.Progress {
	label := textutil.StageLabel(st.name)
	remote := item.IsRemote()
	return func(fraction float64, message string) {
		var percent float64
		if st.phase == progress.PhaseAcquire {
			percent = progress.ItemPercent(remote, progress.PhaseAcquire, fraction)
		} else {
			procFraction := st.fracStart + fraction*(st.fracEnd-st.fracStart)
			percent = progress.ItemPercent(remote, progress.PhaseProcess, procFraction)
		}

		item.SetProgress(label, message, percent)
		if sampler.ShouldLog(percent, label, message) {
			if err := m.persistItem(item); err == nil {
				logger.Debug("progress",
					logging.String("progress_stage", label),
					logging.Float64("progress_percent", percent),
					logging.String("progress_message", message),
				)
			}
		}
		m.hub.Progress(rt.id, item.ID, label, percent, message)

		batch := progress.BatchPercent(rt.finished, rt.total, percent)
		batchMessage := fmt.Sprintf("Item %d of %d", rt.finished+1, rt.total)
		if remaining, ok := rt.eta.ETA(batch); ok {
			batchMessage = fmt.Sprintf("%s (%s)", batchMessage, progress.FormatETA(remaining))
		}
		m.hub.Progress(rt.id, 0, "batch", batch, batchMessage)
	}
}

// persistItem writes item state on a detached context so terminal updates
// survive run cancellation.
func (m *Manager) persistItem(item *queue.Item) error {
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.store.Update(persistCtx, item)
}

// cleanupJob removes intermediate artifacts according to the retention
// settings. Output transcripts and local source files are never touched; a
// short input whose single segment is the audio file itself is excluded from
// segment cleanup and only falls under the download retention rule.
func (m *Manager) cleanupJob(job *stage.Job) {
	if !m.cfg.Transcription.KeepSegments {
		segment.Cleanup(job.Segments, job.AudioPath)
		if job.WorkDir != "" {
			_ = os.Remove(job.WorkDir)
		}
	}
	if job.Item.IsRemote() && !m.cfg.Transcription.KeepDownloads && job.AudioPath != "" {
		_ = os.Remove(job.AudioPath)
	}
}
