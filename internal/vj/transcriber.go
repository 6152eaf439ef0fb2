package vj

import "context"

// Transcriber turns a local audio file into formatted transcript text.
// Calls are long-running; an empty result means nothing usable came back.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// AudioProber reports the playback duration of a local audio file in seconds.
type AudioProber interface {
	Duration(path string) (float64, error)
}

// NameMatcher reports whether a file name should be left out of sync entirely.
type NameMatcher interface {
	Match(name string) bool
}

// NopTranscriber never produces text. Used when transcription is disabled.
type NopTranscriber struct{}

func (NopTranscriber) Transcribe(context.Context, string) (string, error) { return "", nil }
