package vj

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"vj-go/internal/model"
)

// SidecarSuffix marks transcription sidecar files, which never take part in the file diff.
const SidecarSuffix = "-transcription.json"

// IsSidecarName reports whether name is a transcription sidecar file name.
func IsSidecarName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), SidecarSuffix)
}

// SidecarName returns the sidecar file name for an audio file name:
// the name without its extension followed by SidecarSuffix.
func SidecarName(audioName string) string {
	base := strings.TrimSuffix(audioName, filepath.Ext(audioName))
	return base + SidecarSuffix
}

// EncodeSidecar renders the sidecar JSON for a transcription. Empty text is
// still encoded: the sidecar records state, not presence.
func EncodeSidecar(transcription string, updatedAt time.Time) ([]byte, error) {
	data, err := json.Marshal(model.Sidecar{
		Transcription: transcription,
		UpdatedAt:     updatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding sidecar: %w", err)
	}
	return data, nil
}

// DecodeSidecar parses sidecar JSON.
func DecodeSidecar(data []byte) (*model.Sidecar, error) {
	var s model.Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding sidecar: %w", err)
	}
	return &s, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeFilename makes a local file name acceptable to cloud storage:
// it trims, collapses whitespace runs to underscores, and strips characters
// that are reserved on common filesystems or invisible.
func SanitizeFilename(name string) string {
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', ':', '?', '*', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "untitled"
	}
	return name
}

// TitleFromName derives a display title from a file name.
func TitleFromName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// SanitizeRemotePath applies SanitizeFilename to the last element of a remote
// path and leaves the folder part alone.
func SanitizeRemotePath(p string) string {
	i := strings.LastIndex(p, "/")
	return p[:i+1] + SanitizeFilename(p[i+1:])
}
