package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"vj-go/internal/vj"
)

// IgnoreFile is the name of the optional per-user ignore list under the base dir.
const IgnoreFile = ".vjignore"

// IgnoreMatcher checks file names against a set of glob patterns.
// Matching is case-insensitive because remote names are.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped. Invalid globs are dropped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []string
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := strings.ToLower(raw)
		if _, err := path.Match(p, ""); err != nil {
			continue
		}
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the file name should be left out of sync.
// Only the last path element is considered.
func (m *IgnoreMatcher) Match(name string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	for _, p := range m.patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Patterns returns the active patterns.
func (m *IgnoreMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

var _ vj.NameMatcher = (*IgnoreMatcher)(nil)
