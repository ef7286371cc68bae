// Package transcript defines the assembled transcription result and its
// timeline fallback.
package transcript

import (
	"strings"
	"time"
)

// Phrase is one timed span of text with batch-absolute timestamps.
type Phrase struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the complete result for one queue item, assembled from every
// segment in order. Language is the configured hint when one was given,
// otherwise the language the model detected; DetectedLanguages lists every
// language the model reported across segments, in first-seen order.
type Transcript struct {
	Source            string    `json:"source"`
	Title             string    `json:"title,omitempty"`
	Model             string    `json:"model"`
	Language          string    `json:"language,omitempty"`
	DetectedLanguages []string  `json:"detected_languages,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	Text              string    `json:"text"`
	Phrases           []Phrase  `json:"phrases,omitempty"`
}

// Timeline synthesis bounds for models that yield no per-phrase timing.
const (
	fallbackCharsPerSecond = 12.0
	fallbackMinSeconds     = 1.0
	fallbackMaxSeconds     = 8.0
)

// TimedPhrases returns the transcript's phrases, synthesizing a timeline from
// the plain text when the model produced none. Synthetic durations assume a
// steady reading rate, bounded per phrase.
func (t *Transcript) TimedPhrases() []Phrase {
	if len(t.Phrases) > 0 {
		return t.Phrases
	}
	return synthesizeTimeline(t.Text)
}

func synthesizeTimeline(text string) []Phrase {
	chunks := splitSentences(text)
	if len(chunks) == 0 {
		return nil
	}
	phrases := make([]Phrase, 0, len(chunks))
	cursor := 0.0
	for _, chunk := range chunks {
		duration := float64(len(chunk)) / fallbackCharsPerSecond
		if duration < fallbackMinSeconds {
			duration = fallbackMinSeconds
		}
		if duration > fallbackMaxSeconds {
			duration = fallbackMaxSeconds
		}
		phrases = append(phrases, Phrase{Text: chunk, Start: cursor, End: cursor + duration})
		cursor += duration
	}
	return phrases
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		}
	}
	if chunk := strings.TrimSpace(b.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
