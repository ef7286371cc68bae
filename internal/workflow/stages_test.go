package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"penman/internal/config"
	"penman/internal/events"
	"penman/internal/logging"
	"penman/internal/media/segment"
	"penman/internal/progress"
	"penman/internal/queue"
	"penman/internal/services"
	"penman/internal/services/whisper"
	"penman/internal/stage"
	"penman/internal/testsupport"
	"penman/internal/transcript"
)

type fakeInferencer struct {
	calls int
	run   func(call int) (whisper.Result, error)
}

func (f *fakeInferencer) Transcribe(ctx context.Context, audioPath, workDir, languageHint string) (whisper.Result, error) {
	f.calls++
	if f.run != nil {
		return f.run(f.calls)
	}
	return whisper.Result{Text: "ok", Language: "en"}, nil
}

func makeSegments(dir string, n int) []segment.Segment {
	segments := make([]segment.Segment, 0, n)
	for i := 0; i < n; i++ {
		segments = append(segments, segment.Segment{
			Index:              i,
			StartOffsetSeconds: float64(i) * 300,
			DurationSeconds:    300,
			LocalFilePath:      filepath.Join(dir, fmt.Sprintf("part_%03d.wav", i)),
		})
	}
	return segments
}

// inferManager builds a manager whose pipeline runs a stub segmenter feeding
// segmentCount segments into the real transcription stage.
func inferManager(t *testing.T, cfg *config.Config, store *queue.Store, inf *fakeInferencer, segmentCount int) *Manager {
	t.Helper()
	segDir := t.TempDir()
	m := NewManager(cfg, store, logging.NewNop(), events.NewHub(0))
	m.stageFactory = func(remote bool, model *whisper.Model) []pipelineStage {
		return []pipelineStage{
			{
				name: "segment",
				handler: &fakeHandler{name: "segment", execute: func(ctx context.Context, job *stage.Job) error {
					job.Segments = makeSegments(segDir, segmentCount)
					return nil
				}},
				phase:   progress.PhaseProcess,
				fracEnd: 0.05,
			},
			{
				name:      "transcribe",
				handler:   &inferHandler{model: inf, skipFailed: cfg.Transcription.SkipFailedSegments, binary: "whisper"},
				phase:     progress.PhaseProcess,
				fracStart: 0.05,
				fracEnd:   0.95,
			},
		}
	}
	return m
}

func TestRunCancelledMidSegmentsStopsInference(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	items := enqueueLocalItems(t, store, "a.mp3", "b.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inf := &fakeInferencer{run: func(call int) (whisper.Result, error) {
		if call == 2 {
			cancel()
			return whisper.Result{}, ctx.Err()
		}
		return whisper.Result{Text: "ok", Language: "en"}, nil
	}}

	m := inferManager(t, cfg, store, inf, 5)
	summary, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.State != RunStateCancelled {
		t.Fatalf("unexpected run state: %s", summary.State)
	}
	if inf.calls != 2 {
		t.Fatalf("expected inference to stop after 2 segments, got %d calls", inf.calls)
	}

	first, err := store.GetByID(context.Background(), items[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if first.Status != queue.StatusCancelled {
		t.Fatalf("expected first item cancelled, got %s", first.Status)
	}
	second, err := store.GetByID(context.Background(), items[1].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if second.Status != queue.StatusPending {
		t.Fatalf("expected second item untouched, got %s", second.Status)
	}
}

func TestInferStageSkipsFailedSegmentsWhenConfigured(t *testing.T) {
	inf := &fakeInferencer{run: func(call int) (whisper.Result, error) {
		if call == 2 {
			return whisper.Result{}, errors.New("decode failed")
		}
		return whisper.Result{Text: fmt.Sprintf("part %d", call), Language: "en"}, nil
	}}
	h := &inferHandler{model: inf, skipFailed: true, binary: "whisper"}
	job := &stage.Job{WorkDir: t.TempDir(), Segments: makeSegments(t.TempDir(), 3)}

	if err := h.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if inf.calls != 3 {
		t.Fatalf("expected every segment attempted, got %d calls", inf.calls)
	}
	if len(job.Texts) != 2 || job.Texts[0] != "part 1" || job.Texts[1] != "part 3" {
		t.Fatalf("unexpected surviving texts: %v", job.Texts)
	}
}

func TestInferStageFailsWhenEverySegmentFails(t *testing.T) {
	inf := &fakeInferencer{run: func(call int) (whisper.Result, error) {
		return whisper.Result{}, errors.New("decode failed")
	}}
	h := &inferHandler{model: inf, skipFailed: true, binary: "whisper"}
	job := &stage.Job{WorkDir: t.TempDir(), Segments: makeSegments(t.TempDir(), 3)}

	err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error when every segment fails")
	}
	if !strings.Contains(err.Error(), "every segment") {
		t.Fatalf("unexpected error: %v", err)
	}
	if inf.calls != 3 {
		t.Fatalf("expected every segment attempted, got %d calls", inf.calls)
	}
}

func TestInferStageAbortsOnFirstFailureByDefault(t *testing.T) {
	inf := &fakeInferencer{run: func(call int) (whisper.Result, error) {
		if call == 2 {
			return whisper.Result{}, errors.New("decode failed")
		}
		return whisper.Result{Text: "ok"}, nil
	}}
	h := &inferHandler{model: inf, binary: "whisper"}
	job := &stage.Job{WorkDir: t.TempDir(), Segments: makeSegments(t.TempDir(), 5)}

	err := h.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool classification, got %v", err)
	}
	if inf.calls != 2 {
		t.Fatalf("expected abort after the failing segment, got %d calls", inf.calls)
	}
	if len(job.Texts) != 1 {
		t.Fatalf("expected partial results retained, got %v", job.Texts)
	}
}

func TestExportCarriesDetectedLanguage(t *testing.T) {
	h := &exportHandler{
		outputDir: t.TempDir(),
		format:    "json",
		model:     "turbo",
		language:  "auto",
	}
	job := &stage.Job{
		Item:      &queue.Item{Source: "/media/talk.mp3"},
		Texts:     []string{"Hello there."},
		Languages: []string{"en", "en"},
	}

	if err := h.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var decoded transcript.Transcript
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if decoded.Language != "en" {
		t.Fatalf("expected detected language promoted, got %q", decoded.Language)
	}
	if len(decoded.DetectedLanguages) != 1 || decoded.DetectedLanguages[0] != "en" {
		t.Fatalf("unexpected detected languages: %v", decoded.DetectedLanguages)
	}
}

func TestTranscriptLanguageResolution(t *testing.T) {
	cases := []struct {
		hint     string
		detected []string
		want     string
	}{
		{"de", []string{"en"}, "de"},
		{"", []string{"en"}, "en"},
		{"auto", []string{"en"}, "en"},
		{"", []string{"en", "de"}, ""},
		{"", nil, ""},
	}
	for _, tc := range cases {
		if got := transcriptLanguage(tc.hint, tc.detected); got != tc.want {
			t.Errorf("transcriptLanguage(%q, %v) = %q, want %q", tc.hint, tc.detected, got, tc.want)
		}
	}
}
