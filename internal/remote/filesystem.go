package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vj-go/internal/model"
	"vj-go/internal/vj"
)

// FileSystemRemote is a vj.RemoteStore backed by a local directory, such as a
// folder kept in sync by a desktop client or a mounted share:
//
//	<root>/
//	  <file>            (untagged recordings and their sidecars)
//	  <folder>/<file>   (recordings tagged with <folder>)
//
// File IDs are derived from the path and revisions from size and mtime.
// Download links use the file:// scheme.
type FileSystemRemote struct {
	name string
	root string
}

// NewFileSystemRemote creates a remote rooted at the given directory, creating it if needed.
func NewFileSystemRemote(name, root string) (*FileSystemRemote, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving remote root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote root: %w", err)
	}
	return &FileSystemRemote{name: name, root: abs}, nil
}

// ListFiles lists the immediate children of folder. A missing folder lists as empty.
func (r *FileSystemRemote) ListFiles(ctx context.Context, folder string) ([]model.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := r.localPath(folder)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var entries []model.RemoteEntry
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".tmp-") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", de.Name(), err)
		}
		entries = append(entries, r.entry(cleanRemote(folder+"/"+de.Name()), info))
	}
	return entries, nil
}

// DownloadLink returns a file:// URL for the file at p.
func (r *FileSystemRemote) DownloadLink(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	local := r.localPath(p)
	info, err := os.Stat(local)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%s: %w", p, vj.ErrNoTemporaryLink)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(local)}).String(), nil
}

// UploadFile copies the local file to remotePath, overwriting any existing file.
// modified becomes the file's mtime.
func (r *FileSystemRemote) UploadFile(ctx context.Context, localPath, remotePath string, modified *time.Time) (*model.UploadResult, error) {
	remotePath = vj.SanitizeRemotePath(remotePath)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	dest := r.localPath(remotePath)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	if err := writeFile(dest, src, srcInfo.Size()); err != nil {
		return nil, err
	}
	if modified != nil {
		if err := os.Chtimes(dest, *modified, *modified); err != nil {
			return nil, fmt.Errorf("failed to set modified time: %w", err)
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}
	entry := r.entry(cleanRemote(remotePath), info)
	return &model.UploadResult{
		ID:             entry.ID,
		Rev:            entry.Rev,
		ServerModified: entry.ServerModified,
		Name:           entry.Name,
		PathLower:      entry.PathLower,
	}, nil
}

// localPath maps a remote path to disk. Remote paths are case-insensitive, so
// each component that does not exist verbatim is matched with strings.EqualFold.
func (r *FileSystemRemote) localPath(p string) string {
	local := r.root
	for _, part := range strings.Split(strings.TrimPrefix(cleanRemote(p), "/"), "/") {
		if part == "" {
			continue
		}
		next := filepath.Join(local, part)
		if _, err := os.Lstat(next); err != nil {
			if des, err := os.ReadDir(local); err == nil {
				for _, de := range des {
					if strings.EqualFold(de.Name(), part) {
						next = filepath.Join(local, de.Name())
						break
					}
				}
			}
		}
		local = next
	}
	return local
}

func (r *FileSystemRemote) entry(p string, info os.FileInfo) model.RemoteEntry {
	lower := strings.ToLower(p)
	sum := sha256.Sum256([]byte(r.name + ":" + lower))
	entry := model.RemoteEntry{
		ID:          "id:" + hex.EncodeToString(sum[:8]),
		Name:        info.Name(),
		PathLower:   lower,
		PathDisplay: p,
	}
	if info.IsDir() {
		entry.Tag = model.EntryFolder
		return entry
	}

	mtime := info.ModTime().UTC()
	entry.Tag = model.EntryFile
	entry.Rev = fmt.Sprintf("%x%x", mtime.UnixNano(), info.Size())
	entry.ClientModified = mtime.Format(time.RFC3339)
	entry.ServerModified = entry.ClientModified
	entry.Size = info.Size()
	return entry
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Compile-time check that FileSystemRemote implements vj.RemoteStore
var _ vj.RemoteStore = (*FileSystemRemote)(nil)
