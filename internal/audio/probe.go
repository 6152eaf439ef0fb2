// Package audio reads playback durations from audio container headers.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/abema/go-mp4"
	"github.com/go-audio/wav"

	"vj-go/internal/vj"
)

// ErrUnsupported is returned for files that are neither WAV nor MP4/M4A.
var ErrUnsupported = errors.New("unsupported audio format")

// Prober reads durations from WAV and MP4/M4A headers without decoding audio.
type Prober struct{}

var _ vj.AudioProber = (*Prober)(nil)

// NewProber creates a Prober.
func NewProber() *Prober {
	return &Prober{}
}

// Duration returns the playback length of the file at path in seconds.
func (p *Prober) Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var head [12]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, ErrUnsupported)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding %s: %w", path, err)
	}

	var d float64
	switch {
	case bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		d, err = wavDuration(f)
	case bytes.Equal(head[4:8], []byte("ftyp")):
		d, err = mp4Duration(f)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	return d, nil
}

// wavDuration is the data chunk size over the fmt chunk's byte rate.
func wavDuration(r io.ReadSeeker) (float64, error) {
	dec := wav.NewDecoder(r)
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("wav: finding data chunk: %w", err)
	}
	if dec.AvgBytesPerSec == 0 {
		return 0, fmt.Errorf("wav: zero byte rate")
	}
	return float64(dec.PCMSize) / float64(dec.AvgBytesPerSec), nil
}

// mp4Duration is the movie header's duration over its timescale.
func mp4Duration(r io.ReadSeeker) (float64, error) {
	info, err := mp4.Probe(r)
	if err != nil {
		return 0, fmt.Errorf("mp4: %w", err)
	}
	if info.Timescale == 0 {
		return 0, fmt.Errorf("mp4: no mvhd box")
	}
	return float64(info.Duration) / float64(info.Timescale), nil
}
