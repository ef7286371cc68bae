package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Phrase is one timed span of recognized speech, relative to the audio file
// that produced it.
type Phrase struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the output of one inference call. Language is the language the
// model detected (or was told), as reported in its JSON output; empty when the
// tool omits it.
type Result struct {
	Text     string
	Language string
	Phrases  []Phrase
}

// Service manages whisper model handles. Handles are cached per (model,
// device) pair so a batch run loads each once and reuses it for every
// segment.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error

	mu     sync.Mutex
	models map[modelKey]*Model
}

type modelKey struct {
	name   string
	device string
}

// NewService creates a whisper service using the given binary name.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = "whisper"
	}
	return &Service{
		binary: binary,
		models: make(map[modelKey]*Model),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// ResolveDevice maps the configured device to what the tool accepts. "auto"
// defers to the tool's own detection; "gpu" requests CUDA.
func ResolveDevice(requested string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "gpu":
		return "cuda"
	case "cpu":
		return "cpu"
	default:
		return ""
	}
}

// Load returns the model handle for the given name and device, reusing a
// cached handle when one exists.
func (s *Service) Load(name, device string) *Model {
	resolved := ResolveDevice(device)
	key := modelKey{name: name, device: resolved}

	s.mu.Lock()
	defer s.mu.Unlock()
	if model, ok := s.models[key]; ok {
		return model
	}
	model := &Model{service: s, name: name, device: resolved}
	s.models[key] = model
	return model
}

// Model is a reusable inference handle bound to one model name and device.
// Not safe for concurrent Transcribe calls; the pipeline worker owns it
// exclusively for the run's duration.
type Model struct {
	service *Service
	name    string
	device  string
}

// Name returns the model name for logging.
func (m *Model) Name() string { return m.name }

// Device returns the resolved device, or "auto" when deferring to the tool.
func (m *Model) Device() string {
	if m.device == "" {
		return "auto"
	}
	return m.device
}

// Transcribe runs inference over one audio file and parses the JSON output.
// languageHint may be empty for auto-detection. Timestamps in the result are
// relative to the start of audioPath.
func (m *Model) Transcribe(ctx context.Context, audioPath, workDir, languageHint string) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, fmt.Errorf("transcribe: audio path required")
	}
	if workDir == "" {
		workDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("transcribe: ensure work dir: %w", err)
	}

	args := m.buildArgs(audioPath, workDir, languageHint)
	if err := m.service.run(ctx, m.service.binary, args...); err != nil {
		return Result{}, fmt.Errorf("whisper: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(workDir, stem+".json")
	result, err := loadResult(jsonPath)
	if err != nil {
		return Result{}, fmt.Errorf("whisper: %w", err)
	}
	return result, nil
}

func (m *Model) buildArgs(audioPath, outputDir, languageHint string) []string {
	args := []string{
		audioPath,
		"--model", m.name,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if m.device != "" {
		args = append(args, "--device", m.device)
	}
	if m.device == "cpu" {
		args = append(args, "--fp16", "False")
	}
	if lang := strings.TrimSpace(languageHint); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

type jsonPayload struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Segments []Phrase `json:"segments"`
}

func loadResult(jsonPath string) (Result, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Result{}, err
	}
	var payload jsonPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Result{}, fmt.Errorf("parse output json: %w", err)
	}
	result := Result{
		Text:     strings.TrimSpace(payload.Text),
		Language: strings.ToLower(strings.TrimSpace(payload.Language)),
	}
	for _, phrase := range payload.Segments {
		text := strings.TrimSpace(phrase.Text)
		if text == "" {
			continue
		}
		result.Phrases = append(result.Phrases, Phrase{Text: text, Start: phrase.Start, End: phrase.End})
	}
	if result.Text == "" && len(result.Phrases) > 0 {
		parts := make([]string, 0, len(result.Phrases))
		for _, phrase := range result.Phrases {
			parts = append(parts, phrase.Text)
		}
		result.Text = strings.Join(parts, " ")
	}
	return result, nil
}
