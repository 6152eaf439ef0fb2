package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func wavBytes(sampleRate, channels, bits uint32, dataLen int, extraChunk bool) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	byteRate := sampleRate * channels * bits / 8

	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, uint16(channels))
	binary.Write(&b, le, sampleRate)
	binary.Write(&b, le, byteRate)
	binary.Write(&b, le, uint16(channels*bits/8))
	binary.Write(&b, le, uint16(bits))

	if extraChunk {
		b.WriteString("JUNK")
		binary.Write(&b, le, uint32(3))
		b.Write([]byte{1, 2, 3, 0}) // odd size plus pad byte
	}

	b.WriteString("data")
	binary.Write(&b, le, uint32(dataLen))
	b.Write(make([]byte, dataLen))

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, le, uint32(b.Len()))
	out.Write(b.Bytes())
	return out.Bytes()
}

func mp4Box(typ string, body []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(8+len(body)))
	b.WriteString(typ)
	b.Write(body)
	return b.Bytes()
}

func mvhd(version byte, timescale uint32, duration uint64) []byte {
	var b bytes.Buffer
	be := binary.BigEndian
	b.Write([]byte{version, 0, 0, 0})
	if version == 1 {
		binary.Write(&b, be, uint64(0))
		binary.Write(&b, be, uint64(0))
		binary.Write(&b, be, timescale)
		binary.Write(&b, be, duration)
	} else {
		binary.Write(&b, be, uint32(0))
		binary.Write(&b, be, uint32(0))
		binary.Write(&b, be, timescale)
		binary.Write(&b, be, uint32(duration))
	}
	b.Write(make([]byte, 80))
	return mp4Box("mvhd", b.Bytes())
}

func m4aBytes(version byte, timescale uint32, duration uint64, largeMdat bool) []byte {
	var b bytes.Buffer
	b.Write(mp4Box("ftyp", []byte("M4A \x00\x00\x00\x00M4A isom")))

	payload := make([]byte, 100)
	if largeMdat {
		binary.Write(&b, binary.BigEndian, uint32(1))
		b.WriteString("mdat")
		binary.Write(&b, binary.BigEndian, uint64(16+len(payload)))
		b.Write(payload)
	} else {
		b.Write(mp4Box("mdat", payload))
	}

	moov := append(mp4Box("udta", []byte("meta")), mvhd(version, timescale, duration)...)
	b.Write(mp4Box("moov", moov))
	return b.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProber_Duration(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want float64
	}{
		{name: "wav mono 16-bit", file: "a.wav", data: wavBytes(8000, 1, 16, 32000, false), want: 2},
		{name: "wav stereo with extra chunk", file: "b.wav", data: wavBytes(44100, 2, 16, 44100*4/2, true), want: 0.5},
		{name: "m4a mvhd v0", file: "c.m4a", data: m4aBytes(0, 44100, 44100*90, false), want: 90},
		{name: "m4a mvhd v1 after large mdat", file: "d.m4a", data: m4aBytes(1, 1000, 12345, true), want: 12.345},
	}
	p := NewProber()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Duration(writeFile(t, tt.file, tt.data))
			if err != nil {
				t.Fatalf("Duration() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProber_Errors(t *testing.T) {
	p := NewProber()

	t.Run("missing file", func(t *testing.T) {
		if _, err := p.Duration(filepath.Join(t.TempDir(), "none.m4a")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want not-exist", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := p.Duration(writeFile(t, "x.mp3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00")))
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := p.Duration(writeFile(t, "x.m4a", []byte("abc"))); !errors.Is(err, ErrUnsupported) {
			t.Errorf("error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("wav with zero byte rate", func(t *testing.T) {
		if _, err := p.Duration(writeFile(t, "z.wav", wavBytes(0, 1, 16, 100, false))); err == nil {
			t.Error("expected error for zero byte rate")
		}
	})

	t.Run("m4a without moov", func(t *testing.T) {
		data := mp4Box("ftyp", []byte("M4A \x00\x00\x00\x00"))
		if _, err := p.Duration(writeFile(t, "x.m4a", data)); err == nil {
			t.Error("expected error for missing moov box")
		}
	})

	t.Run("wav without data chunk", func(t *testing.T) {
		data := wavBytes(8000, 1, 16, 0, true)
		data = data[:len(data)-8]
		if _, err := p.Duration(writeFile(t, "x.wav", data)); err == nil {
			t.Error("expected error for missing data chunk")
		}
	})
}
