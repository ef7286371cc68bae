package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"penman/internal/logging"
	"penman/internal/services/ytdlp"
	"penman/internal/textutil"
)

// longVideoWarnSeconds flags sources likely to take a very long time to
// download and transcribe.
const longVideoWarnSeconds = 4 * 60 * 60

// Cause classifies why an acquisition attempt ended.
type Cause string

const (
	CauseAllStrategiesExhausted Cause = "all_strategies_exhausted"
	CauseCancelled              Cause = "cancelled"
	CauseProbeFailed            Cause = "probe_failed"
	CauseFailed                 Cause = "failed"
)

// Error is the terminal result of a failed acquisition. LastCauses records
// the per-strategy failure messages in attempt order.
type Error struct {
	Cause      Cause
	LastCauses []string
}

func (e *Error) Error() string {
	if len(e.LastCauses) == 0 {
		return fmt.Sprintf("acquisition %s", e.Cause)
	}
	return fmt.Sprintf("acquisition %s: %s", e.Cause, strings.Join(e.LastCauses, "; "))
}

// Downloader is the remote media capability the runner drives. Implemented by
// ytdlp.Service; tests substitute fakes.
type Downloader interface {
	Probe(ctx context.Context, url string) (ytdlp.Metadata, error)
	Download(ctx context.Context, url string, strategy ytdlp.Strategy, outputPath string, onProgress func(float64)) error
}

// Result carries the acquired audio file and the metadata probed for it.
type Result struct {
	AudioPath string
	Metadata  ytdlp.Metadata
}

// Runner tries each download strategy in order until one yields a playable
// audio stream.
type Runner struct {
	downloader Downloader
	strategies []ytdlp.Strategy
	logger     *slog.Logger
}

// NewRunner creates a strategy runner. A nil strategy list uses the default
// fallback chain.
func NewRunner(downloader Downloader, strategies []ytdlp.Strategy, logger *slog.Logger) *Runner {
	if len(strategies) == 0 {
		strategies = ytdlp.DefaultStrategies()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		downloader: downloader,
		strategies: strategies,
		logger:     logging.NewComponentLogger(logger, "acquirer"),
	}
}

// Run probes the source, then walks the strategy chain until a download
// succeeds. Fractional progress from the active strategy is forwarded to
// onProgress. Cancellation is observed between strategies and inside each
// attempt; partial files are removed on failure or cancellation.
func (r *Runner) Run(ctx context.Context, url, destDir string, onProgress func(float64)) (Result, error) {
	log := logging.WithContext(ctx, r.logger)

	meta, err := r.downloader.Probe(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &Error{Cause: CauseCancelled}
		}
		return Result{}, &Error{Cause: CauseProbeFailed, LastCauses: []string{err.Error()}}
	}
	if meta.DurationSeconds > longVideoWarnSeconds {
		log.Warn("very long source; download and transcription will take a while",
			logging.String("title", meta.Title),
			logging.Float64("duration_seconds", meta.DurationSeconds),
		)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, &Error{Cause: CauseFailed, LastCauses: []string{fmt.Sprintf("create download dir: %v", err)}}
	}

	base := textutil.SanitizeFileName(meta.Title)
	if base == "" {
		base = "download"
	}
	audioPath := filepath.Join(destDir, base+".wav")
	template := filepath.Join(destDir, base+".%(ext)s")

	var causes []string
	for _, strategy := range r.strategies {
		if ctx.Err() != nil {
			removePartial(audioPath)
			return Result{}, &Error{Cause: CauseCancelled, LastCauses: causes}
		}

		log.Debug("trying download strategy", logging.String("strategy", strategy.Name))
		err := r.downloader.Download(ctx, url, strategy, template, onProgress)
		if err == nil {
			if _, statErr := os.Stat(audioPath); statErr != nil {
				causes = append(causes, fmt.Sprintf("%s: output missing: %v", strategy.Name, statErr))
				continue
			}
			log.Info("download complete",
				logging.String("strategy", strategy.Name),
				logging.String("path", audioPath),
			)
			return Result{AudioPath: audioPath, Metadata: meta}, nil
		}

		removePartial(audioPath)
		if ctx.Err() != nil {
			return Result{}, &Error{Cause: CauseCancelled, LastCauses: causes}
		}

		causes = append(causes, fmt.Sprintf("%s: %v", strategy.Name, err))
		if !ytdlp.IsRetryableMessage(err.Error()) {
			return Result{}, &Error{Cause: CauseFailed, LastCauses: causes}
		}
		log.Debug("strategy failed; trying next",
			logging.String("strategy", strategy.Name),
			logging.Error(err),
		)
	}

	return Result{}, &Error{Cause: CauseAllStrategiesExhausted, LastCauses: causes}
}

func removePartial(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
	_ = os.Remove(path + ".part")
}
