package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the probe result for a remote source.
type Metadata struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
}

// Service wraps the yt-dlp binary for probing and downloading remote audio.
type Service struct {
	binary        string
	outputRunner  func(ctx context.Context, name string, args ...string) ([]byte, error)
	streamRunner  func(ctx context.Context, name string, args []string, onLine func(string)) error
	metadataCache map[string]Metadata
}

// NewService creates a yt-dlp service using the given binary name.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &Service{
		binary:        binary,
		metadataCache: make(map[string]Metadata),
	}
}

// WithOutputRunner sets a custom output-capturing runner (for testing).
func (s *Service) WithOutputRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.outputRunner = runner
}

// WithStreamRunner sets a custom line-streaming runner (for testing).
func (s *Service) WithStreamRunner(runner func(ctx context.Context, name string, args []string, onLine func(string)) error) {
	s.streamRunner = runner
}

// Probe fetches title and duration for a remote URL without downloading. It
// tries the same client identities as downloads so metadata survives platform
// blocks, and caches results per URL for the process lifetime.
func (s *Service) Probe(ctx context.Context, url string) (Metadata, error) {
	if meta, ok := s.metadataCache[url]; ok {
		return meta, nil
	}

	var lastErr error
	for _, strategy := range DefaultStrategies() {
		args := []string{"-J", "--no-playlist", "--no-warnings"}
		if strategy.ExtractorArgs != "" {
			args = append(args, "--extractor-args", strategy.ExtractorArgs)
		}
		args = append(args, url)

		output, err := s.runOutput(ctx, args...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Metadata{}, ctx.Err()
			}
			if IsRetryableMessage(err.Error()) {
				continue
			}
			return Metadata{}, fmt.Errorf("probe %s: %w", url, err)
		}

		var meta Metadata
		if err := json.Unmarshal(output, &meta); err != nil {
			lastErr = fmt.Errorf("parse probe output: %w", err)
			continue
		}
		s.metadataCache[url] = meta
		return meta, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}
	return Metadata{}, fmt.Errorf("probe %s: %w", url, lastErr)
}

// Download fetches the audio stream for url using one strategy, writing a WAV
// file at outputPath. Fractional progress (0.0-1.0) is forwarded to onProgress
// as yt-dlp reports it.
func (s *Service) Download(ctx context.Context, url string, strategy Strategy, outputPath string, onProgress func(float64)) error {
	args := buildDownloadArgs(url, strategy, outputPath)

	handleLine := func(line string) {
		if fraction, ok := parseProgressLine(line); ok && onProgress != nil {
			onProgress(fraction)
		}
	}

	if err := s.runStream(ctx, args, handleLine); err != nil {
		return fmt.Errorf("download %s (%s): %w", url, strategy.Name, err)
	}
	return nil
}

func buildDownloadArgs(url string, strategy Strategy, outputPath string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"-f", strategy.Format,
	}
	if strategy.ExtractorArgs != "" {
		args = append(args, "--extractor-args", strategy.ExtractorArgs)
	}
	args = append(args,
		"-x",
		"--audio-format", "wav",
		"--postprocessor-args", "ffmpeg:-ar 16000 -ac 1",
		"-o", outputPath,
		url,
	)
	return args
}

// parseProgressLine extracts the fractional progress from a yt-dlp --newline
// progress line such as "[download]  42.7% of 12.34MiB at 1.2MiB/s".
func parseProgressLine(line string) (float64, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[download]") {
		return 0, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "[download]"))
	fields := strings.Fields(rest)
	if len(fields) == 0 || !strings.HasSuffix(fields[0], "%") {
		return 0, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
	if err != nil {
		return 0, false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent / 100, true
}

func (s *Service) runOutput(ctx context.Context, args ...string) ([]byte, error) {
	if s.outputRunner != nil {
		return s.outputRunner(ctx, s.binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}

func (s *Service) runStream(ctx context.Context, args []string, onLine func(string)) error {
	if s.streamRunner != nil {
		return s.streamRunner(ctx, s.binary, args, onLine)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
