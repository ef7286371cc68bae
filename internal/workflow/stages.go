package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"penman/internal/acquire"
	"penman/internal/config"
	"penman/internal/export"
	"penman/internal/media"
	"penman/internal/media/segment"
	"penman/internal/progress"
	"penman/internal/queue"
	"penman/internal/services"
	"penman/internal/services/whisper"
	"penman/internal/services/ytdlp"
	"penman/internal/stage"
	"penman/internal/transcribe"
	"penman/internal/transcript"
)

// pipelineStage binds a handler to its slice of the item progress scale.
// fracStart/fracEnd are fractions of the processing phase; the acquisition
// stage owns the whole acquire phase instead.
type pipelineStage struct {
	name      string
	handler   stage.Handler
	phase     progress.Phase
	fracStart float64
	fracEnd   float64
}

func (m *Manager) defaultStages(remote bool, model *whisper.Model) []pipelineStage {
	stages := make([]pipelineStage, 0, 4)
	if remote {
		stages = append(stages, pipelineStage{
			name:    "acquire",
			handler: newAcquireHandler(m.cfg, m.ytdlp, m.logger),
			phase:   progress.PhaseAcquire,
			fracEnd: 1,
		})
	}
	stages = append(stages,
		pipelineStage{
			name:      "segment",
			handler:   newSegmentHandler(m.cfg),
			phase:     progress.PhaseProcess,
			fracStart: 0,
			fracEnd:   0.05,
		},
		pipelineStage{
			name:      "transcribe",
			handler:   newInferHandler(m.cfg, model),
			phase:     progress.PhaseProcess,
			fracStart: 0.05,
			fracEnd:   0.95,
		},
		pipelineStage{
			name:      "export",
			handler:   newExportHandler(m.cfg),
			phase:     progress.PhaseProcess,
			fracStart: 0.95,
			fracEnd:   1,
		},
	)
	return stages
}

type acquireHandler struct {
	runner *acquire.Runner
	binary string
}

func newAcquireHandler(cfg *config.Config, downloader *ytdlp.Service, logger *slog.Logger) *acquireHandler {
	return &acquireHandler{
		runner: acquire.NewRunner(downloader, nil, logger),
		binary: cfg.YtdlpBinary(),
	}
}

func (h *acquireHandler) Name() string { return "acquire" }

func (h *acquireHandler) Prepare(ctx context.Context, job *stage.Job) error {
	if err := os.MkdirAll(job.DownloadDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "acquire", "prepare",
			"could not create download directory", err)
	}
	return nil
}

func (h *acquireHandler) Execute(ctx context.Context, job *stage.Job) error {
	job.ReportProgress(0, "Fetching source metadata")
	result, err := h.runner.Run(ctx, job.Item.Source, job.DownloadDir, func(fraction float64) {
		job.ReportProgress(fraction, "Downloading audio")
	})
	if err != nil {
		var aqErr *acquire.Error
		if errors.As(err, &aqErr) && aqErr.Cause == acquire.CauseCancelled {
			return services.Wrap(services.ErrCancelled, "acquire", "download",
				"download cancelled", err)
		}
		return services.Wrap(services.ErrExternalTool, "acquire", "download",
			"could not acquire remote audio", err)
	}

	job.AudioPath = result.AudioPath
	job.Item.AudioFile = result.AudioPath
	if strings.TrimSpace(job.Item.Title) == "" {
		job.Item.Title = result.Metadata.Title
	}
	if err := job.Item.SetMetadata(queue.RemoteMetadata{
		URL:             job.Item.Source,
		Title:           result.Metadata.Title,
		DurationSeconds: int(result.Metadata.DurationSeconds),
	}); err != nil {
		return services.Wrap(services.ErrValidation, "acquire", "store metadata",
			"could not encode source metadata", err)
	}
	job.ReportProgress(1, "Download complete")
	return nil
}

func (h *acquireHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.BinaryHealth("acquire", h.binary)
}

type segmentHandler struct {
	splitter     *segment.Splitter
	ffmpegBinary string
}

func newSegmentHandler(cfg *config.Config) *segmentHandler {
	return &segmentHandler{
		splitter:     segment.NewSplitter(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Transcription.SegmentSeconds),
		ffmpegBinary: cfg.FFmpegBinary(),
	}
}

func (h *segmentHandler) Name() string { return "segment" }

func (h *segmentHandler) Prepare(ctx context.Context, job *stage.Job) error {
	if !job.Item.IsRemote() {
		if _, err := os.Stat(job.Item.Source); err != nil {
			return services.Wrap(services.ErrNotFound, "segment", "prepare",
				fmt.Sprintf("source file missing: %s", job.Item.Source), err)
		}
		if err := media.ValidateInputPath(job.Item.Source); err != nil {
			return services.Wrap(services.ErrValidation, "segment", "prepare",
				"unsupported input file", err)
		}
		job.AudioPath = job.Item.Source
		job.Item.AudioFile = job.Item.Source
	}
	if strings.TrimSpace(job.AudioPath) == "" {
		return services.Wrap(services.ErrValidation, "segment", "prepare",
			"no audio file to segment", nil)
	}
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "segment", "prepare",
			"could not create staging directory", err)
	}
	return nil
}

func (h *segmentHandler) Execute(ctx context.Context, job *stage.Job) error {
	job.ReportProgress(0, "Splitting audio into segments")
	segments, err := h.splitter.Split(ctx, job.AudioPath, job.WorkDir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "segment", "split",
			"could not segment audio", err)
	}
	job.Segments = segments
	job.ReportProgress(1, fmt.Sprintf("Prepared %d segment(s)", len(segments)))
	return nil
}

func (h *segmentHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.BinaryHealth("segment", h.ffmpegBinary)
}

type inferHandler struct {
	model      transcribe.Inferencer
	language   string
	skipFailed bool
	binary     string
}

func newInferHandler(cfg *config.Config, model transcribe.Inferencer) *inferHandler {
	return &inferHandler{
		model:      model,
		language:   cfg.Transcription.Language,
		skipFailed: cfg.Transcription.SkipFailedSegments,
		binary:     cfg.WhisperBinary(),
	}
}

func (h *inferHandler) Name() string { return "transcribe" }

func (h *inferHandler) Prepare(ctx context.Context, job *stage.Job) error {
	if h.model == nil {
		return services.Wrap(services.ErrConfiguration, "transcribe", "prepare",
			"no model loaded", nil)
	}
	if len(job.Segments) == 0 {
		return services.Wrap(services.ErrValidation, "transcribe", "prepare",
			"no segments to transcribe", nil)
	}
	return nil
}

func (h *inferHandler) Execute(ctx context.Context, job *stage.Job) error {
	adapter := transcribe.NewAdapter(h.model, h.language)
	total := len(job.Segments)
	var failed int

	for i, seg := range job.Segments {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job.ReportProgress(progress.ProcessFraction(i, total, 0),
			fmt.Sprintf("Transcribing segment %d of %d", i+1, total))

		result, err := adapter.TranscribeSegment(ctx, seg, job.WorkDir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if h.skipFailed {
				failed++
				job.ReportProgress(progress.ProcessFraction(i+1, total, 0),
					fmt.Sprintf("Segment %d of %d failed; continuing", i+1, total))
				continue
			}
			return services.Wrap(services.ErrExternalTool, "transcribe", "infer",
				fmt.Sprintf("inference failed on segment %d of %d", i+1, total), err)
		}

		job.Texts = append(job.Texts, result.Text)
		job.Phrases = append(job.Phrases, result.Phrases...)
		job.Languages = append(job.Languages, result.Language)
	}

	if failed == total {
		return services.Wrap(services.ErrExternalTool, "transcribe", "infer",
			"inference failed on every segment", nil)
	}
	job.ReportProgress(1, "Transcription complete")
	return nil
}

func (h *inferHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.BinaryHealth("transcribe", h.binary)
}

type exportHandler struct {
	outputDir         string
	format            string
	includeTimestamps bool
	model             string
	language          string
}

func newExportHandler(cfg *config.Config) *exportHandler {
	return &exportHandler{
		outputDir:         cfg.Paths.OutputDir,
		format:            cfg.Transcription.OutputFormat,
		includeTimestamps: cfg.Transcription.IncludeTimestamps,
		model:             cfg.Transcription.Model,
		language:          cfg.Transcription.Language,
	}
}

func (h *exportHandler) Name() string { return "export" }

func (h *exportHandler) Prepare(ctx context.Context, job *stage.Job) error {
	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "export", "prepare",
			"could not create output directory", err)
	}
	return nil
}

func (h *exportHandler) Execute(ctx context.Context, job *stage.Job) error {
	job.ReportProgress(0, "Writing transcript")

	text, phrases := transcribe.Assemble(job.Texts, job.Phrases)
	detected := transcribe.DistinctLanguages(job.Languages)
	job.Transcript = &transcript.Transcript{
		Source:            job.Item.Source,
		Title:             exportTitle(job),
		Model:             h.model,
		Language:          transcriptLanguage(h.language, detected),
		DetectedLanguages: detected,
		DurationSeconds:   totalDuration(job),
		CreatedAt:         time.Now().UTC(),
		Text:              text,
		Phrases:           phrases,
	}

	path, err := export.Write(job.Transcript, h.outputDir, exportStem(job), export.Options{
		Format:            h.format,
		IncludeTimestamps: h.includeTimestamps,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "export", "write",
			"could not write transcript", err)
	}
	job.OutputPath = path
	job.Item.OutputFile = path
	job.ReportProgress(1, "Transcript written")
	return nil
}

func (h *exportHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("export")
}

func exportTitle(job *stage.Job) string {
	if title := strings.TrimSpace(job.Item.Title); title != "" {
		return title
	}
	return exportStem(job)
}

// exportStem picks the output file stem: the probed title for remote items,
// the source basename for local files.
func exportStem(job *stage.Job) string {
	if job.Item.IsRemote() {
		if title := strings.TrimSpace(job.Item.Title); title != "" {
			return title
		}
		return "download"
	}
	base := filepath.Base(job.Item.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// transcriptLanguage resolves the transcript's language field: an explicit
// configured hint wins; under auto-detection a uniformly detected language is
// promoted, and mixed detections leave it unset.
func transcriptLanguage(hint string, detected []string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint != "" && hint != "auto" {
		return hint
	}
	if len(detected) == 1 {
		return detected[0]
	}
	return ""
}

func totalDuration(job *stage.Job) float64 {
	if meta := job.Item.Metadata(); meta != nil && meta.DurationSeconds > 0 {
		return float64(meta.DurationSeconds)
	}
	var total float64
	for _, seg := range job.Segments {
		total += seg.DurationSeconds
	}
	return total
}
