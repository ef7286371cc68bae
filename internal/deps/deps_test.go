package deps

import (
	"os"
	"path/filepath"
	"testing"

	"penman/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unconfigured", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary flagged, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestRequirementsAndMissingRequired(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	reqs := Requirements(cfg)
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requirements, got %d", len(reqs))
	}
	var ytdlpOptional bool
	for _, req := range reqs {
		if req.Name == "yt-dlp" {
			ytdlpOptional = req.Optional
		}
	}
	if !ytdlpOptional {
		t.Fatal("expected yt-dlp to be optional")
	}

	statuses := []Status{
		{Name: "ffmpeg", Available: false},
		{Name: "yt-dlp", Available: false, Optional: true},
		{Name: "whisper", Available: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "ffmpeg" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
}
