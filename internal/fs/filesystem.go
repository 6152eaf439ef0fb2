package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"vj-go/internal/vj"
)

const tempPrefix = "vj-"

// OSFileStore keeps audio files in a directory on the local disk.
// Links are fetched over HTTP(S), from file:// URLs, or through a LinkFetcher
// registered for their scheme.
type OSFileStore struct {
	audioDir string
	tempDir  string
	client   *http.Client
	fetchers map[string]vj.LinkFetcher

	mu       sync.Mutex
	reserved map[string]bool
}

// Option configures an OSFileStore.
type Option func(*OSFileStore)

// WithHTTPClient sets the client used for http and https links.
func WithHTTPClient(c *http.Client) Option {
	return func(s *OSFileStore) { s.client = c }
}

// WithFetcher registers f for links with the given URL scheme.
func WithFetcher(scheme string, f vj.LinkFetcher) Option {
	return func(s *OSFileStore) { s.fetchers[strings.ToLower(scheme)] = f }
}

// WithTempDir sets where sidecar temp files are written. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(s *OSFileStore) { s.tempDir = dir }
}

// NewOSFileStore creates a file store rooted at audioDir, creating it if needed.
func NewOSFileStore(audioDir string, opts ...Option) (*OSFileStore, error) {
	abs, err := filepath.Abs(audioDir)
	if err != nil {
		return nil, fmt.Errorf("resolving audio dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}

	s := &OSFileStore{
		audioDir: abs,
		tempDir:  os.TempDir(),
		client:   &http.Client{Timeout: 10 * time.Minute},
		fetchers: make(map[string]vj.LinkFetcher),
		reserved: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AudioDir returns the absolute audio directory.
func (s *OSFileStore) AudioDir() string {
	return s.audioDir
}

// Stat returns fresh file info for path.
func (s *OSFileStore) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// NewAudioPath returns an unused path for name in the audio directory.
// Collisions get a numeric suffix: "a.m4a", "a-2.m4a", "a-3.m4a". A returned
// path stays reserved for the life of the store so concurrent downloads of
// same-named files never share a destination.
func (s *OSFileStore) NewAudioPath(name string) (string, error) {
	name = vj.SanitizeFilename(filepath.Base(name))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 1; n < 10000; n++ {
		candidate := name
		if n > 1 {
			candidate = stem + "-" + strconv.Itoa(n) + ext
		}
		p := filepath.Join(s.audioDir, candidate)
		if s.reserved[p] {
			continue
		}
		if _, err := os.Lstat(p); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		s.reserved[p] = true
		return p, nil
	}
	return "", fmt.Errorf("no free file name for %q", name)
}

// Download fetches link and atomically replaces destPath with its body.
func (s *OSFileStore) Download(ctx context.Context, link, destPath string) error {
	body, err := s.open(ctx, link)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := writeAtomic(destPath, body); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

func (s *OSFileStore) open(ctx context.Context, link string) (io.ReadCloser, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parsing link: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)

	if f, ok := s.fetchers[scheme]; ok {
		rc, err := f.Fetch(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("fetching link: %w", err)
		}
		return rc, nil
	}

	switch scheme {
	case "file":
		f, err := os.Open(filepath.FromSlash(u.Path))
		if err != nil {
			return nil, fmt.Errorf("opening link: %w", err)
		}
		return f, nil
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching link: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching link: unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported link scheme %q", u.Scheme)
	}
}

// WriteTempFile writes data to <tempdir>/vj-*/name.
// Remove on the returned path also removes its private directory.
func (s *OSFileStore) WriteTempFile(name string, data []byte) (string, error) {
	dir, err := os.MkdirTemp(s.tempDir, tempPrefix)
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	p := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0600); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	return p, nil
}

// Remove deletes path. Missing files are ignored.
func (s *OSFileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if filepath.Dir(dir) == filepath.Clean(s.tempDir) && strings.HasPrefix(filepath.Base(dir), tempPrefix) {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}

	s.mu.Lock()
	delete(s.reserved, path)
	s.mu.Unlock()
	return nil
}

// Import copies the file at src into the audio directory and returns the new path.
func (s *OSFileStore) Import(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", src)
	}

	dest, err := s.NewAudioPath(filepath.Base(src))
	if err != nil {
		return "", err
	}
	if err := writeAtomic(dest, in); err != nil {
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	return dest, nil
}

// writeAtomic streams r to a temp file next to dest, then renames it into place.
func writeAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

var _ vj.FileStore = (*OSFileStore)(nil)
