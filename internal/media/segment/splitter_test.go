package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeProbeStub writes an executable that prints ffprobe-shaped JSON for the
// given duration, so Split sees a real inspection result without ffprobe.
func writeProbeStub(t *testing.T, dir string, durationSeconds float64) string {
	t.Helper()
	payload := fmt.Sprintf(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"%.1f"}}`, durationSeconds)
	path := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n" + payload + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write probe stub: %v", err)
	}
	return path
}

func TestSplitShortInputPassesSourceThrough(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "talk.mp3")
	if err := os.WriteFile(source, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	splitter := NewSplitter("ffmpeg", writeProbeStub(t, dir, 240), 300)
	var ffmpegCalls int
	splitter.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		ffmpegCalls++
		return nil
	})

	segments, err := splitter.Split(context.Background(), source, filepath.Join(dir, "work"))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if ffmpegCalls != 0 {
		t.Fatalf("expected no ffmpeg invocations for short input, got %d", ffmpegCalls)
	}
	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(segments))
	}
	if segments[0].LocalFilePath != source {
		t.Fatalf("expected segment to point at the source, got %q", segments[0].LocalFilePath)
	}
	if segments[0].DurationSeconds != 240 {
		t.Fatalf("unexpected duration: %f", segments[0].DurationSeconds)
	}
}

func TestSplitLongInputInvokesSegmentMuxer(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "lecture.mp3")
	if err := os.WriteFile(source, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	splitter := NewSplitter("ffmpeg", writeProbeStub(t, dir, 700), 300)
	var calls [][]string
	splitter.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	})

	workDir := filepath.Join(dir, "work")
	segments, err := splitter.Split(context.Background(), source, workDir)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg invocation, got %d", len(calls))
	}
	joined := strings.Join(calls[0], " ")
	for _, want := range []string{"-f segment", "-segment_time 300", "-reset_timestamps 1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in ffmpeg args %q", want, joined)
		}
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for _, seg := range segments {
		if seg.LocalFilePath == source {
			t.Fatalf("split segment %d must not alias the source", seg.Index)
		}
		if filepath.Dir(seg.LocalFilePath) != workDir {
			t.Fatalf("segment %d outside work dir: %q", seg.Index, seg.LocalFilePath)
		}
	}
}

func TestCleanupSparesPassthroughSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "talk.mp3")
	derived := filepath.Join(dir, "talk_001.wav")
	for _, path := range []string{source, derived} {
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	Cleanup([]Segment{
		{Index: 0, LocalFilePath: source},
		{Index: 1, LocalFilePath: derived},
	}, source)

	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source file removed by cleanup: %v", err)
	}
	if _, err := os.Stat(derived); !os.IsNotExist(err) {
		t.Fatalf("expected derived segment removed, got %v", err)
	}
}
