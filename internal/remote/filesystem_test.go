package remote

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vj-go/internal/vj"
)

func TestNewFileSystemRemote(t *testing.T) {
	root := filepath.Join(t.TempDir(), "remote")
	r, err := NewFileSystemRemote("local", root)
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
	if r.name != "local" {
		t.Errorf("name = %q", r.name)
	}
}

func TestFileSystemRemote_UploadAndList(t *testing.T) {
	root := t.TempDir()
	r, err := NewFileSystemRemote("local", root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	modified := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	res, err := r.UploadFile(ctx, writeTemp(t, "Dream.m4a", "v1"), "/VoiceJournal/Dream.m4a", &modified)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if res.PathLower != "/voicejournal/dream.m4a" || res.Name != "Dream.m4a" {
		t.Errorf("result = %+v", res)
	}
	if res.ServerModified != "2024-03-01T10:00:00Z" {
		t.Errorf("ServerModified = %q, want client modified time", res.ServerModified)
	}

	if err := os.MkdirAll(filepath.Join(root, "VoiceJournal", "Ideas"), 0755); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Dream.m4a", "Ideas/"}, names(t, r, "/VoiceJournal")); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	entries, _ := r.ListFiles(ctx, "/voicejournal")
	var listed string
	for _, e := range entries {
		if e.Name == "Dream.m4a" {
			listed = e.ID
			if e.Rev != res.Rev {
				t.Errorf("listed rev %q != upload rev %q", e.Rev, res.Rev)
			}
		}
	}
	if listed != res.ID {
		t.Errorf("listed ID %q != upload ID %q", listed, res.ID)
	}

	later := modified.Add(time.Hour)
	again, err := r.UploadFile(ctx, writeTemp(t, "Dream.m4a", "version-2"), "/voicejournal/dream.m4a", &later)
	if err != nil {
		t.Fatalf("second UploadFile() error = %v", err)
	}
	if again.ID != res.ID {
		t.Errorf("overwrite changed ID")
	}
	if again.Rev == res.Rev {
		t.Errorf("overwrite kept rev")
	}
	data, err := os.ReadFile(filepath.Join(root, "VoiceJournal", "Dream.m4a"))
	if err != nil || string(data) != "version-2" {
		t.Errorf("overwrite went to %v, content %q", err, data)
	}
}

func TestFileSystemRemote_UploadSanitizesName(t *testing.T) {
	root := t.TempDir()
	r, err := NewFileSystemRemote("local", root)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.UploadFile(context.Background(), writeTemp(t, "w.m4a", "walk"), "/VoiceJournal/Evening Walk|2.m4a", nil)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if res.Name != "Evening_Walk2.m4a" {
		t.Errorf("Name = %q, want Evening_Walk2.m4a", res.Name)
	}
	if _, err := os.Stat(filepath.Join(root, "VoiceJournal", "Evening_Walk2.m4a")); err != nil {
		t.Errorf("sanitized file not written: %v", err)
	}
}

func TestFileSystemRemote_DownloadLink(t *testing.T) {
	root := t.TempDir()
	r, err := NewFileSystemRemote("local", root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	dir := filepath.Join(root, "VoiceJournal", "Dreams")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Night.m4a"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	link, err := r.DownloadLink(ctx, "/voicejournal/dreams/night.m4a")
	if err != nil {
		t.Fatalf("DownloadLink() error = %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "file" || filepath.FromSlash(u.Path) != filepath.Join(dir, "Night.m4a") {
		t.Errorf("link = %q", link)
	}

	if _, err := r.DownloadLink(ctx, "/voicejournal/dreams"); !errors.Is(err, vj.ErrNoTemporaryLink) {
		t.Errorf("folder link error = %v, want ErrNoTemporaryLink", err)
	}
	if _, err := r.DownloadLink(ctx, "/voicejournal/none.m4a"); !errors.Is(err, vj.ErrNoTemporaryLink) {
		t.Errorf("missing link error = %v, want ErrNoTemporaryLink", err)
	}
}

func TestFileSystemRemote_MissingFolder(t *testing.T) {
	r, err := NewFileSystemRemote("local", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := names(t, r, "/Nope"); len(got) != 0 {
		t.Errorf("listing = %v, want empty", got)
	}
}
