package ytdlp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultStrategiesOrder(t *testing.T) {
	strategies := DefaultStrategies()
	if len(strategies) != 5 {
		t.Fatalf("expected 5 strategies, got %d", len(strategies))
	}
	wantNames := []string{
		"android-bestaudio",
		"android-format-18",
		"web-bestaudio",
		"default-bestaudio",
		"android-worstaudio",
	}
	for i, want := range wantNames {
		if strategies[i].Name != want {
			t.Fatalf("strategy %d = %q, want %q", i, strategies[i].Name, want)
		}
	}
	if strategies[3].ExtractorArgs != "" {
		t.Fatalf("default strategy should not pin a client, got %q", strategies[3].ExtractorArgs)
	}
}

func TestIsRetryableMessage(t *testing.T) {
	retryable := []string{
		"ERROR: This video is DRM protected",
		"Video unavailable",
		"Requested format is not available",
		"HTTP Error 403: Forbidden",
		"This format is no longer supported",
	}
	for _, msg := range retryable {
		if !IsRetryableMessage(msg) {
			t.Errorf("expected retryable: %q", msg)
		}
	}
	if IsRetryableMessage("ERROR: Unsupported URL: ftp://nope") {
		t.Error("unsupported URL should not be retryable")
	}
}

func TestParseProgressLine(t *testing.T) {
	cases := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[download]  42.7% of 12.34MiB at 1.2MiB/s", 0.427, true},
		{"[download] 100% of 12.34MiB in 00:05", 1.0, true},
		{"[download] Destination: out.wav", 0, false},
		{"[ExtractAudio] Destination: out.wav", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseProgressLine(tc.line)
		if ok != tc.ok {
			t.Errorf("parseProgressLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if ok && (got < tc.want-0.001 || got > tc.want+0.001) {
			t.Errorf("parseProgressLine(%q) = %f, want %f", tc.line, got, tc.want)
		}
	}
}

func TestProbeFallsBackAcrossClientsAndCaches(t *testing.T) {
	svc := NewService("yt-dlp")
	calls := 0
	svc.WithOutputRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ERROR: Requested format is not available")
		}
		return []byte(`{"id":"abc","title":"A Talk","duration":780}`), nil
	})

	meta, err := svc.Probe(context.Background(), "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Title != "A Talk" || meta.DurationSeconds != 780 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if calls != 2 {
		t.Fatalf("expected fallback to second client, got %d calls", calls)
	}

	// Second probe served from cache.
	if _, err := svc.Probe(context.Background(), "https://example.com/watch?v=abc"); err != nil {
		t.Fatalf("cached Probe: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected cache hit, got %d calls", calls)
	}
}

func TestProbeStopsOnNonRetryableError(t *testing.T) {
	svc := NewService("yt-dlp")
	calls := 0
	svc.WithOutputRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls++
		return nil, errors.New("ERROR: Unsupported URL")
	})

	_, err := svc.Probe(context.Background(), "https://example.com/nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected no fallback on non-retryable error, got %d calls", calls)
	}
}

func TestDownloadForwardsProgress(t *testing.T) {
	svc := NewService("yt-dlp")
	svc.WithStreamRunner(func(ctx context.Context, name string, args []string, onLine func(string)) error {
		if !contains(args, "--newline") {
			t.Errorf("expected --newline in args %v", args)
		}
		if !contains(args, "wav") {
			t.Errorf("expected wav audio format in args %v", args)
		}
		onLine("[download]  10.0% of ~1MiB")
		onLine("[download]  55.0% of ~1MiB")
		onLine("[download] 100% of 1MiB in 00:02")
		return nil
	})

	var seen []float64
	err := svc.Download(context.Background(), "https://example.com/watch?v=abc",
		DefaultStrategies()[0], "/tmp/out.wav", func(f float64) {
			seen = append(seen, f)
		})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(seen) != 3 || seen[2] != 1.0 {
		t.Fatalf("unexpected progress sequence: %v", seen)
	}
}

func TestBuildDownloadArgsIncludesClientIdentity(t *testing.T) {
	args := buildDownloadArgs("https://example.com/v", DefaultStrategies()[0], "/tmp/x.wav")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--extractor-args youtube:player_client=android") {
		t.Fatalf("missing client identity in %q", joined)
	}
	if !strings.Contains(joined, "-f bestaudio/best") {
		t.Fatalf("missing format in %q", joined)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
