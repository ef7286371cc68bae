// Package transcribe adapts the inference model to segmented audio, shifting
// per-segment timestamps back to absolute recording time.
package transcribe

import (
	"context"
	"fmt"
	"strings"

	"penman/internal/media/segment"
	"penman/internal/services/whisper"
	"penman/internal/transcript"
)

// Inferencer is the model capability the adapter drives. Implemented by
// whisper.Model; tests substitute fakes.
type Inferencer interface {
	Transcribe(ctx context.Context, audioPath, workDir, languageHint string) (whisper.Result, error)
}

// Adapter runs inference segment by segment for one item, reusing a single
// model handle supplied by the caller.
type Adapter struct {
	model    Inferencer
	language string
}

// NewAdapter binds a model handle and language hint for one batch run.
func NewAdapter(model Inferencer, language string) *Adapter {
	return &Adapter{model: model, language: language}
}

// SegmentResult is one segment's transcription with timestamps shifted to
// absolute recording time. Language is what the model detected for the
// segment, empty when the tool reports none.
type SegmentResult struct {
	Phrases  []transcript.Phrase
	Text     string
	Language string
}

// TranscribeSegment runs inference over one segment and returns its phrases
// with timestamps shifted by the segment's start offset.
func (a *Adapter) TranscribeSegment(ctx context.Context, seg segment.Segment, workDir string) (SegmentResult, error) {
	if seg.LocalFilePath == "" {
		return SegmentResult{}, fmt.Errorf("segment %d has no audio file", seg.Index)
	}
	result, err := a.model.Transcribe(ctx, seg.LocalFilePath, workDir, a.language)
	if err != nil {
		return SegmentResult{}, fmt.Errorf("segment %d: %w", seg.Index, err)
	}

	phrases := make([]transcript.Phrase, 0, len(result.Phrases))
	for _, phrase := range result.Phrases {
		phrases = append(phrases, transcript.Phrase{
			Text:  phrase.Text,
			Start: phrase.Start + seg.StartOffsetSeconds,
			End:   phrase.End + seg.StartOffsetSeconds,
		})
	}
	return SegmentResult{
		Phrases:  phrases,
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
	}, nil
}

// Assemble joins per-segment text fragments and phrases into one transcript
// body in segment order.
func Assemble(texts []string, phrases []transcript.Phrase) (string, []transcript.Phrase) {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " "), phrases
}

// DistinctLanguages returns the unique detected languages in first-seen order,
// dropping empty entries.
func DistinctLanguages(languages []string) []string {
	seen := make(map[string]struct{}, len(languages))
	var distinct []string
	for _, language := range languages {
		language = strings.ToLower(strings.TrimSpace(language))
		if language == "" {
			continue
		}
		if _, ok := seen[language]; ok {
			continue
		}
		seen[language] = struct{}{}
		distinct = append(distinct, language)
	}
	return distinct
}
