package testutil

import (
	"context"
	"path/filepath"
	"sync"

	"vj-go/internal/vj"
)

// FakeTranscriber returns canned text keyed by the audio file's base name,
// falling back to Text. Err, when set, fails every call.
type FakeTranscriber struct {
	mu    sync.Mutex
	Text  string
	Texts map[string]string
	Err   error
	calls []string
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, audioPath)
	if f.Err != nil {
		return "", f.Err
	}
	if t, ok := f.Texts[filepath.Base(audioPath)]; ok {
		return t, nil
	}
	return f.Text, nil
}

// Calls returns the audio paths passed to Transcribe, in call order.
func (f *FakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// FakeProber reports Seconds for every file, or Err when set.
type FakeProber struct {
	Seconds float64
	Err     error
}

func (f FakeProber) Duration(string) (float64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Seconds, nil
}

var (
	_ vj.Transcriber = (*FakeTranscriber)(nil)
	_ vj.AudioProber = FakeProber{}
)
