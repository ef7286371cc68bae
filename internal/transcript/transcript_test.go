package transcript

import (
	"math"
	"strings"
	"testing"
)

func TestTimedPhrasesPrefersModelTiming(t *testing.T) {
	tr := &Transcript{
		Text:    "Hello there.",
		Phrases: []Phrase{{Text: "Hello there.", Start: 3, End: 5}},
	}
	got := tr.TimedPhrases()
	if len(got) != 1 || got[0].Start != 3 {
		t.Fatalf("expected model phrases untouched, got %+v", got)
	}
}

func TestTimedPhrasesSynthesizesFromText(t *testing.T) {
	tr := &Transcript{Text: "One. Two two two. Three?"}
	got := tr.TimedPhrases()
	if len(got) != 3 {
		t.Fatalf("expected 3 synthesized phrases, got %d", len(got))
	}
	// Contiguous, monotonically increasing timeline.
	cursor := 0.0
	for i, phrase := range got {
		if math.Abs(phrase.Start-cursor) > 1e-9 {
			t.Fatalf("phrase %d starts at %f, expected %f", i, phrase.Start, cursor)
		}
		if phrase.End <= phrase.Start {
			t.Fatalf("phrase %d has non-positive duration", i)
		}
		cursor = phrase.End
	}
	// "One." is 4 chars; the minimum bound applies.
	if got[0].End-got[0].Start != 1.0 {
		t.Fatalf("expected minimum duration for short phrase, got %f", got[0].End-got[0].Start)
	}
}

func TestSynthesizedDurationIsBounded(t *testing.T) {
	long := strings.Repeat("word ", 60) + "."
	tr := &Transcript{Text: long}
	got := tr.TimedPhrases()
	if len(got) != 1 {
		t.Fatalf("expected 1 phrase, got %d", len(got))
	}
	if got[0].End-got[0].Start != 8.0 {
		t.Fatalf("expected capped duration, got %f", got[0].End-got[0].Start)
	}
}

func TestTimedPhrasesEmptyText(t *testing.T) {
	tr := &Transcript{}
	if got := tr.TimedPhrases(); got != nil {
		t.Fatalf("expected nil phrases, got %+v", got)
	}
}
