package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"penman/internal/config"
	"penman/internal/events"
	"penman/internal/logging"
	"penman/internal/queue"
	"penman/internal/services/whisper"
	"penman/internal/services/ytdlp"
)

// Manager coordinates queue processing through the pipeline stages.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	hub    *events.Hub

	ytdlp   *ytdlp.Service
	whisper *whisper.Service

	pollInterval time.Duration
	errorRetry   time.Duration

	stageFactory func(remote bool, model *whisper.Model) []pipelineStage

	lock *flock.Flock

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
	lastRun  Summary
}

// NewManager constructs a workflow manager. A nil hub gets a private one so
// event publishing never needs guarding.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *events.Hub) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		hub:          hub,
		ytdlp:        ytdlp.NewService(cfg.YtdlpBinary()),
		whisper:      whisper.NewService(cfg.WhisperBinary()),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		lock:         flock.New(filepath.Join(cfg.Paths.LogDir, "penman.lock")),
	}
	m.stageFactory = m.defaultStages
	return m
}

// Hub exposes the event hub for observers.
func (m *Manager) Hub() *events.Hub {
	return m.hub
}

func (m *Manager) loadModel() *whisper.Model {
	return m.whisper.Load(
		m.cfg.Transcription.Model,
		whisper.ResolveDevice(m.cfg.Transcription.Device),
	)
}

// acquireLock takes the single-active-run file lock without blocking.
func (m *Manager) acquireLock() error {
	if err := os.MkdirAll(m.cfg.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("workflow: ensure lock dir: %w", err)
	}
	locked, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("workflow: acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("workflow: another run is already active (lock %s held)", m.lock.Path())
	}
	return nil
}

func (m *Manager) releaseLock() {
	if err := m.lock.Unlock(); err != nil {
		m.logger.Warn("failed to release run lock", logging.Error(err))
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		cp := *item
		m.lastItem = &cp
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setLastRun(summary Summary) {
	m.mu.Lock()
	m.lastRun = summary
	m.mu.Unlock()
}
