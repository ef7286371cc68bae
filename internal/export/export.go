// Package export renders finished transcripts to disk in the configured
// format.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"penman/internal/textutil"
	"penman/internal/transcript"
)

// Options control rendering.
type Options struct {
	Format            string
	IncludeTimestamps bool
}

// Write renders the transcript into outputDir and returns the path written.
// Output names never collide: `<stem>_transcript_<timestamp>` gains a numeric
// suffix when a run produces several files in the same second.
func Write(tr *transcript.Transcript, outputDir, stem string, opts Options) (string, error) {
	if tr == nil {
		return "", fmt.Errorf("export: transcript is nil")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "txt"
	}

	var content string
	var err error
	switch format {
	case "txt":
		content = renderText(tr, opts.IncludeTimestamps)
	case "md":
		content = renderMarkdown(tr, opts.IncludeTimestamps)
	case "json":
		content, err = renderJSON(tr)
	case "srt":
		content = renderSRT(tr)
	case "vtt":
		content = renderVTT(tr)
	default:
		return "", fmt.Errorf("export: unsupported format %q", opts.Format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("export: ensure output dir: %w", err)
	}

	path, err := collisionFreePath(outputDir, stem, format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, nil
}

func collisionFreePath(outputDir, stem, ext string) (string, error) {
	stem = textutil.SanitizeFileName(stem)
	if stem == "" {
		stem = "transcript"
	}
	timestamp := time.Now().Format("20060102_150405")
	base := fmt.Sprintf("%s_transcript_%s", stem, timestamp)

	candidate := filepath.Join(outputDir, base+"."+ext)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	for i := 1; i < 100; i++ {
		candidate = filepath.Join(outputDir, fmt.Sprintf("%s_%02d.%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("export: could not find free name for %s in %s", base, outputDir)
}

func renderText(tr *transcript.Transcript, includeTimestamps bool) string {
	var b strings.Builder
	if !includeTimestamps {
		b.WriteString(strings.TrimSpace(tr.Text))
		b.WriteByte('\n')
		return b.String()
	}
	for _, phrase := range tr.TimedPhrases() {
		b.WriteString(fmt.Sprintf("[%s] %s\n", formatClock(phrase.Start), phrase.Text))
	}
	return b.String()
}

func renderMarkdown(tr *transcript.Transcript, includeTimestamps bool) string {
	var b strings.Builder
	title := strings.TrimSpace(tr.Title)
	if title == "" {
		title = "Transcript"
	}
	b.WriteString("# " + title + "\n\n")
	if tr.Source != "" {
		b.WriteString(fmt.Sprintf("- Source: %s\n", tr.Source))
	}
	if tr.Model != "" {
		b.WriteString(fmt.Sprintf("- Model: %s\n", tr.Model))
	}
	if lang := languageLine(tr); lang != "" {
		b.WriteString(fmt.Sprintf("- Language: %s\n", lang))
	}
	if !tr.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("- Date: %s\n", tr.CreatedAt.Format("2006-01-02 15:04")))
	}
	b.WriteByte('\n')

	if includeTimestamps {
		for _, phrase := range tr.TimedPhrases() {
			b.WriteString(fmt.Sprintf("- **[%s]** %s\n", formatClock(phrase.Start), phrase.Text))
		}
	} else {
		b.WriteString(strings.TrimSpace(tr.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

// languageLine renders the transcript language, falling back to the detected
// set when no single language is pinned.
func languageLine(tr *transcript.Transcript) string {
	if lang := strings.TrimSpace(tr.Language); lang != "" {
		return lang
	}
	return strings.Join(tr.DetectedLanguages, ", ")
}

func renderJSON(tr *transcript.Transcript) (string, error) {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal transcript: %w", err)
	}
	return string(data) + "\n", nil
}

func renderSRT(tr *transcript.Transcript) string {
	var b strings.Builder
	for i, phrase := range tr.TimedPhrases() {
		b.WriteString(fmt.Sprintf("%d\n", i+1))
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatSubTime(phrase.Start, ','), formatSubTime(phrase.End, ',')))
		b.WriteString(phrase.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderVTT(tr *transcript.Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, phrase := range tr.TimedPhrases() {
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatSubTime(phrase.Start, '.'), formatSubTime(phrase.End, '.')))
		b.WriteString(phrase.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatClock renders seconds as MM:SS, growing to H:MM:SS past an hour.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// formatSubTime renders seconds as HH:MM:SS<sep>mmm for subtitle cues.
func formatSubTime(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}
