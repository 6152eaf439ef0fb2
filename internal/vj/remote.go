package vj

import (
	"context"
	"io"
	"time"

	"vj-go/internal/model"
)

// RemoteStore is the cloud file store the engine reconciles against.
// Every call is a fresh round-trip; implementations do not cache.
type RemoteStore interface {
	// ListFiles lists the immediate children of folderPath (non-recursive).
	ListFiles(ctx context.Context, folderPath string) ([]model.RemoteEntry, error)

	// DownloadLink returns a temporary URL for the file at path.
	// Returns an error wrapping ErrNoTemporaryLink when none can be obtained.
	DownloadLink(ctx context.Context, path string) (string, error)

	// UploadFile uploads the file at localPath to remotePath, overwriting any existing file.
	// The last element of remotePath is passed through SanitizeFilename first, and the
	// result carries the path actually written.
	// modified, when non-nil, is recorded as the file's client modification time.
	UploadFile(ctx context.Context, localPath, remotePath string, modified *time.Time) (*model.UploadResult, error)
}

// LinkFetcher opens temporary links that are not plain HTTP URLs (for example
// links handed out by the in-memory remote).
type LinkFetcher interface {
	Fetch(ctx context.Context, link string) (io.ReadCloser, error)
}
