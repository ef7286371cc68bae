package segment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"penman/internal/media/ffprobe"
)

// Splitter turns one audio file into bounded WAV segments using ffmpeg.
// Split output is 16 kHz mono PCM; input short enough for a single segment is
// handed to the model as is.
type Splitter struct {
	ffmpegBinary  string
	ffprobeBinary string
	maxSeconds    int
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewSplitter creates a splitter using the given binaries and segment limit.
func NewSplitter(ffmpegBinary, ffprobeBinary string, maxSeconds int) *Splitter {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	if maxSeconds <= 0 {
		maxSeconds = 300
	}
	return &Splitter{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		maxSeconds:    maxSeconds,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Splitter) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Split probes the source duration and materializes the planned segments under
// workDir. Input already within the limit passes through untouched; the single
// segment points at the original file and ffmpeg is never invoked for it.
func (s *Splitter) Split(ctx context.Context, source, workDir string) ([]Segment, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("segment split: source path required")
	}

	probe, err := ffprobe.Inspect(ctx, s.ffprobeBinary, source)
	if err != nil {
		return nil, err
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return nil, fmt.Errorf("segment split: could not determine duration of %s", source)
	}
	if probe.AudioStreamCount() == 0 {
		return nil, fmt.Errorf("segment split: no audio stream in %s", source)
	}

	plan := Plan(duration, s.maxSeconds)
	if len(plan) == 1 {
		plan[0].LocalFilePath = source
		return plan, nil
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("segment split: ensure work dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	pattern := filepath.Join(workDir, stem+"_%03d.wav")
	if err := s.run(ctx, s.ffmpegBinary, buildSplitArgs(source, s.maxSeconds, pattern)...); err != nil {
		return nil, fmt.Errorf("segment split: %w", err)
	}

	for i := range plan {
		path := filepath.Join(workDir, fmt.Sprintf("%s_%03d.wav", stem, i))
		if s.commandRunner == nil {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("segment split: expected segment missing: %w", err)
			}
		}
		plan[i].LocalFilePath = path
	}
	return plan, nil
}

// Cleanup removes segment files, tolerating already-missing paths. A segment
// pointing at the original audio file (short input passed through unsplit) is
// never removed here; download retention decides the original's fate.
func Cleanup(segments []Segment, original string) {
	for _, seg := range segments {
		if seg.LocalFilePath == "" || seg.LocalFilePath == original {
			continue
		}
		_ = os.Remove(seg.LocalFilePath)
	}
}

func (s *Splitter) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func buildSplitArgs(source string, maxSeconds int, pattern string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", source,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "segment",
		"-segment_time", strconv.Itoa(maxSeconds),
		"-reset_timestamps", "1",
		pattern,
	}
}
