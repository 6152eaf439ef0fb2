package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Parallel()
	m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.LOG", " .* "})
	if diff := cmp.Diff([]string{"*.log", ".*"}, m.Patterns()); diff != "" {
		t.Errorf("Patterns() mismatch (-want +got):\n%s", diff)
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		file     string
		want     bool
	}{
		{name: "hidden file", patterns: []string{".*"}, file: ".DS_Store", want: true},
		{name: "extension glob", patterns: []string{"*.tmp"}, file: "upload.tmp", want: true},
		{name: "case-insensitive", patterns: []string{"*.tmp"}, file: "UPLOAD.TMP", want: true},
		{name: "different extension", patterns: []string{"*.tmp"}, file: "dream.m4a", want: false},
		{name: "only the base name counts", patterns: []string{"drafts"}, file: "/VoiceJournal/drafts", want: true},
		{name: "windows separators", patterns: []string{"*.tmp"}, file: `C:\audio\x.tmp`, want: true},
		{name: "exact name", patterns: []string{"Thumbs.db"}, file: "thumbs.db", want: true},
		{name: "no patterns", patterns: nil, file: "anything", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.file); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_Nil(t *testing.T) {
	var m *IgnoreMatcher
	if m.Match("a.m4a") {
		t.Error("nil matcher should match nothing")
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		got, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFile))
		if err != nil || got != nil {
			t.Errorf("ParseIgnoreFile() = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("reads lines", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), IgnoreFile)
		if err := os.WriteFile(p, []byte("# scratch\n*.wav\n\nnotes.txt\n"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := ParseIgnoreFile(p)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if diff := cmp.Diff([]string{"# scratch", "*.wav", "", "notes.txt"}, got); diff != "" {
			t.Errorf("lines mismatch (-want +got):\n%s", diff)
		}
		m := NewIgnoreMatcher(got)
		if !m.Match("take1.WAV") || m.Match("take1.m4a") {
			t.Error("matcher built from file does not behave")
		}
	})
}
