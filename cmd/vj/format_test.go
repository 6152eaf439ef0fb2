package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"vj-go/internal/database"
	"vj-go/internal/model"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "-:--"},
		{-1, "-:--"},
		{9.6, "0:09"},
		{75, "1:15"},
		{3599, "59:59"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRecording(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	labels := map[string]string{"tag-dream": "Dream"}

	tests := []struct {
		name string
		enc  model.Encounter
		want []string
	}{
		{
			name: "synced with tags",
			enc: model.Encounter{
				ID: "enc-1", Title: "Morning", Duration: 42,
				CreatedDate: now.Add(-3 * time.Hour).Format(time.RFC3339),
				Tags:        []string{"tag-dream", "tag-gone"}, DropboxFileID: "id:1",
			},
			want: []string{"enc-1", "Morning", "0:42", "3 hours ago", "synced", "Dream, tag-gone"},
		},
		{
			name: "local with unparseable date",
			enc:  model.Encounter{ID: "enc-2", Title: "Walk", CreatedDate: "yesterday"},
			want: []string{"yesterday", "local", "-:--"},
		},
		{
			name: "draft",
			enc:  model.Encounter{ID: "enc-3", IsTemporary: true},
			want: []string{"draft"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRecording(&tt.enc, labels, now)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatRecording() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestFormatRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &model.SyncRun{
		ID: 7, RunID: "20240601T110000Z", StartedAt: now.Add(-time.Hour),
		Status: database.RunError, Total: 5, Completed: 5, Failed: 2, Error: "listing remote: offline",
	}
	got := formatRun(run, now)
	for _, w := range []string{"#7", "20240601T110000Z", "1 hour ago", "error", "5/5", "2 failed", "listing remote: offline"} {
		if !strings.Contains(got, w) {
			t.Errorf("formatRun() = %q, missing %q", got, w)
		}
	}

	run = &model.SyncRun{ID: 8, StartedAt: now, Status: database.RunSuccess}
	if got := formatRun(run, now); strings.Contains(got, "failed") {
		t.Errorf("formatRun() = %q, want no failure note", got)
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "trimmed", input: "  abc123 \n", want: "abc123"},
		{name: "no newline", input: "abc123", want: "abc123"},
		{name: "first line only", input: "one\ntwo\n", want: "one"},
		{name: "empty input", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := readLine(strings.NewReader(tt.input), &out, "Code: ")
			if (err != nil) != tt.wantErr {
				t.Fatalf("readLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readLine() = %q, want %q", got, tt.want)
			}
			if out.String() != "Code: " {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestPromptPassword(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }
	var out bytes.Buffer
	got, err := promptPassword(&out, "Passphrase: ")
	if err != nil || got != "s3cret" {
		t.Fatalf("promptPassword() = %q, %v", got, err)
	}
	if out.String() != "Passphrase: \n" {
		t.Errorf("prompt output = %q", out.String())
	}

	readPassword = func(fd int) ([]byte, error) { return nil, errors.New("not a tty") }
	if _, err := promptPassword(&out, "Passphrase: "); err == nil {
		t.Error("expected error when the terminal read fails")
	}
}

func TestReadPassphraseFromEnv(t *testing.T) {
	t.Setenv("VJ_PASSPHRASE", "from-env")
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(fd int) ([]byte, error) {
		t.Error("terminal should not be read when the environment supplies the passphrase")
		return nil, nil
	}

	for name, fn := range map[string]func() (string, error){"readPassphrase": readPassphrase, "newPassphrase": newPassphrase} {
		got, err := fn()
		if err != nil || got != "from-env" {
			t.Errorf("%s() = %q, %v", name, got, err)
		}
	}
}
