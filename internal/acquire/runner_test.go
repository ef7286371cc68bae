package acquire_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"penman/internal/acquire"
	"penman/internal/services/ytdlp"
)

type fakeDownloader struct {
	meta     ytdlp.Metadata
	probeErr error
	// results maps strategy name to the error that attempt returns. Missing
	// entries succeed.
	results map[string]error
	calls   []string
}

func (f *fakeDownloader) Probe(ctx context.Context, url string) (ytdlp.Metadata, error) {
	if f.probeErr != nil {
		return ytdlp.Metadata{}, f.probeErr
	}
	return f.meta, nil
}

func (f *fakeDownloader) Download(ctx context.Context, url string, strategy ytdlp.Strategy, outputPath string, onProgress func(float64)) error {
	f.calls = append(f.calls, strategy.Name)
	if err, ok := f.results[strategy.Name]; ok && err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(0.5)
		onProgress(1.0)
	}
	// Materialize the audio file the way the real binary would.
	finalPath := strings.Replace(outputPath, ".%(ext)s", ".wav", 1)
	return os.WriteFile(finalPath, []byte("riff"), 0o644)
}

func strategies(names ...string) []ytdlp.Strategy {
	out := make([]ytdlp.Strategy, 0, len(names))
	for _, name := range names {
		out = append(out, ytdlp.Strategy{Name: name, Format: "bestaudio"})
	}
	return out
}

func TestRunStopsAtFirstWorkingStrategy(t *testing.T) {
	dl := &fakeDownloader{
		meta: ytdlp.Metadata{Title: "Test Talk", DurationSeconds: 120},
		results: map[string]error{
			"a": errors.New("ERROR: Requested format is not available"),
			"b": errors.New("HTTP Error 403: Forbidden"),
		},
	}
	runner := acquire.NewRunner(dl, strategies("a", "b", "c"), nil)

	var progress []float64
	result, err := runner.Run(context.Background(), "https://example.com/v", t.TempDir(), func(f float64) {
		progress = append(progress, f)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(dl.calls) != 3 {
		t.Fatalf("expected each strategy tried once, got %v", dl.calls)
	}
	for i, want := range []string{"a", "b", "c"} {
		if dl.calls[i] != want {
			t.Fatalf("unexpected attempt order: %v", dl.calls)
		}
	}
	if filepath.Base(result.AudioPath) != "Test Talk.wav" {
		t.Fatalf("unexpected audio path: %q", result.AudioPath)
	}
	if _, err := os.Stat(result.AudioPath); err != nil {
		t.Fatalf("expected audio file on disk: %v", err)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 1.0 {
		t.Fatalf("expected forwarded progress, got %v", progress)
	}
}

func TestRunExhaustsAllStrategies(t *testing.T) {
	dl := &fakeDownloader{
		meta: ytdlp.Metadata{Title: "Blocked", DurationSeconds: 60},
		results: map[string]error{
			"a": errors.New("Video unavailable"),
			"b": errors.New("This video is DRM protected"),
		},
	}
	runner := acquire.NewRunner(dl, strategies("a", "b"), nil)

	_, err := runner.Run(context.Background(), "https://example.com/v", t.TempDir(), nil)
	var acqErr *acquire.Error
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected acquire.Error, got %v", err)
	}
	if acqErr.Cause != acquire.CauseAllStrategiesExhausted {
		t.Fatalf("unexpected cause: %s", acqErr.Cause)
	}
	if len(acqErr.LastCauses) != 2 {
		t.Fatalf("expected 2 recorded causes, got %v", acqErr.LastCauses)
	}
}

func TestRunStopsOnNonRetryableFailure(t *testing.T) {
	dl := &fakeDownloader{
		meta: ytdlp.Metadata{Title: "Broken", DurationSeconds: 60},
		results: map[string]error{
			"a": errors.New("invalid credentials for private video"),
		},
	}
	runner := acquire.NewRunner(dl, strategies("a", "b"), nil)

	_, err := runner.Run(context.Background(), "https://example.com/v", t.TempDir(), nil)
	var acqErr *acquire.Error
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected acquire.Error, got %v", err)
	}
	if acqErr.Cause != acquire.CauseFailed {
		t.Fatalf("unexpected cause: %s", acqErr.Cause)
	}
	if len(dl.calls) != 1 {
		t.Fatalf("expected no fallback after non-retryable failure, got %v", dl.calls)
	}
}

func TestRunReportsCancellation(t *testing.T) {
	dl := &fakeDownloader{meta: ytdlp.Metadata{Title: "Talk", DurationSeconds: 60}}
	runner := acquire.NewRunner(dl, strategies("a"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, "https://example.com/v", t.TempDir(), nil)
	var acqErr *acquire.Error
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected acquire.Error, got %v", err)
	}
	if acqErr.Cause != acquire.CauseCancelled {
		t.Fatalf("unexpected cause: %s", acqErr.Cause)
	}
	if len(dl.calls) != 0 {
		t.Fatalf("expected no attempts after cancellation, got %v", dl.calls)
	}
}

func TestRunProbeFailure(t *testing.T) {
	dl := &fakeDownloader{probeErr: errors.New("ERROR: Unsupported URL")}
	runner := acquire.NewRunner(dl, strategies("a"), nil)

	_, err := runner.Run(context.Background(), "ftp://nope", t.TempDir(), nil)
	var acqErr *acquire.Error
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected acquire.Error, got %v", err)
	}
	if acqErr.Cause != acquire.CauseProbeFailed {
		t.Fatalf("unexpected cause: %s", acqErr.Cause)
	}
}
