package vj

import (
	"context"
	"io/fs"
)

// FileStore abstracts the local audio directory so the engine can be tested
// against a temp dir and fake links.
type FileStore interface {
	// Stat returns fresh file info for path. Missing files yield an error matching fs.ErrNotExist.
	Stat(path string) (fs.FileInfo, error)

	// Download fetches link and atomically writes its body to destPath.
	Download(ctx context.Context, link, destPath string) error

	// NewAudioPath returns an unused path in the audio directory for a file named name.
	NewAudioPath(name string) (string, error)

	// WriteTempFile writes data to a new temporary file whose base name is name.
	// The caller removes the returned path.
	WriteTempFile(name string, data []byte) (string, error)

	// Remove deletes the file at path. Removing a missing file is not an error.
	Remove(path string) error
}
