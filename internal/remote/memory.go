package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"vj-go/internal/model"
	"vj-go/internal/vj"
)

// MemoryLinkScheme is the URL scheme of links handed out by MemoryRemote.
const MemoryLinkScheme = "memory"

const memoryScheme = MemoryLinkScheme + "://"

type memoryObject struct {
	entry model.RemoteEntry
	data  []byte
}

// MemoryRemote is an in-memory implementation of vj.RemoteStore.
// It behaves like a Dropbox folder tree (ids, revs, timestamps), making it useful
// for tests and dry runs. Its temporary links use the memory:// scheme and are
// opened through Fetch. This implementation is safe for concurrent use.
type MemoryRemote struct {
	name  string
	clock vj.Clock

	mu       sync.RWMutex
	files    map[string]*memoryObject // path_lower -> file
	folders  map[string]string        // path_lower -> display name
	linkErrs map[string]error         // path_lower -> injected DownloadLink failure
	uploads  []string                 // path_lower of every upload, in order
	listed   int
	nextID   int
	nextRev  int
}

// NewMemoryRemote creates an empty in-memory remote. A nil clock uses the real clock.
func NewMemoryRemote(name string, clock vj.Clock) *MemoryRemote {
	if clock == nil {
		clock = vj.RealClock{}
	}
	return &MemoryRemote{
		name:     name,
		clock:    clock,
		files:    make(map[string]*memoryObject),
		folders:  make(map[string]string),
		linkErrs: make(map[string]error),
	}
}

// AddFolder creates a folder (and its parents).
func (m *MemoryRemote) AddFolder(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFolderLocked(p)
}

func (m *MemoryRemote) addFolderLocked(p string) {
	for p = cleanRemote(p); p != ""; p = parentOf(p) {
		if _, ok := m.folders[strings.ToLower(p)]; ok {
			return
		}
		m.folders[strings.ToLower(p)] = path.Base(p)
	}
}

// PutFile stores a file as if another client had uploaded it. Empty rev or
// clientModified are generated.
func (m *MemoryRemote) PutFile(p string, data []byte, clientModified, rev string) model.RemoteEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clientModified == "" {
		clientModified = m.clock.Now().UTC().Format(time.RFC3339)
	}
	obj := m.storeLocked(p, data, clientModified)
	if rev != "" {
		obj.entry.Rev = rev
	}
	return obj.entry
}

// FailDownloadLink makes DownloadLink for p return err.
func (m *MemoryRemote) FailDownloadLink(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkErrs[strings.ToLower(cleanRemote(p))] = err
}

// Uploads returns the lower-cased paths of all uploads so far, in order.
func (m *MemoryRemote) Uploads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.uploads...)
}

// ListCalls returns how many times ListFiles has been called.
func (m *MemoryRemote) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listed
}

// File returns the stored content and entry for p.
func (m *MemoryRemote) File(p string) ([]byte, model.RemoteEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.files[strings.ToLower(cleanRemote(p))]
	if !ok {
		return nil, model.RemoteEntry{}, false
	}
	return append([]byte(nil), obj.data...), obj.entry, true
}

// ListFiles lists the immediate children of folder. A folder that does not
// exist lists as empty.
func (m *MemoryRemote) ListFiles(ctx context.Context, folder string) ([]model.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.listed++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	parent := strings.ToLower(cleanRemote(folder))
	var entries []model.RemoteEntry
	for lower, display := range m.folders {
		if parentOf(lower) != parent {
			continue
		}
		entries = append(entries, model.RemoteEntry{
			Tag:       model.EntryFolder,
			ID:        "id:folder" + lower,
			Name:      display,
			PathLower: lower,
		})
	}
	for lower, obj := range m.files {
		if parentOf(lower) == parent {
			entries = append(entries, obj.entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].PathLower < entries[j].PathLower })
	return entries, nil
}

// DownloadLink returns a memory:// link for the file at p.
func (m *MemoryRemote) DownloadLink(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(cleanRemote(p))
	if err, ok := m.linkErrs[lower]; ok {
		return "", err
	}
	if _, ok := m.files[lower]; !ok {
		return "", fmt.Errorf("%s: %w", p, vj.ErrNoTemporaryLink)
	}
	return memoryScheme + lower, nil
}

// Fetch opens a link returned by DownloadLink.
func (m *MemoryRemote) Fetch(ctx context.Context, link string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(link, memoryScheme) {
		return nil, fmt.Errorf("not a memory link: %s", link)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.files[strings.TrimPrefix(link, memoryScheme)]
	if !ok {
		return nil, fmt.Errorf("link expired: %s", link)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

// UploadFile stores the local file at remotePath, overwriting any existing file.
func (m *MemoryRemote) UploadFile(ctx context.Context, localPath, remotePath string, modified *time.Time) (*model.UploadResult, error) {
	remotePath = vj.SanitizeRemotePath(remotePath)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clientModified := m.clock.Now().UTC().Format(time.RFC3339)
	if modified != nil {
		clientModified = modified.UTC().Format(time.RFC3339)
	}
	obj := m.storeLocked(remotePath, data, clientModified)
	m.uploads = append(m.uploads, obj.entry.PathLower)

	return &model.UploadResult{
		ID:             obj.entry.ID,
		Rev:            obj.entry.Rev,
		ServerModified: obj.entry.ServerModified,
		Name:           obj.entry.Name,
		PathLower:      obj.entry.PathLower,
	}, nil
}

// storeLocked writes a file, keeping its ID when it already exists. Caller holds mu.
func (m *MemoryRemote) storeLocked(p string, data []byte, clientModified string) *memoryObject {
	p = cleanRemote(p)
	lower := strings.ToLower(p)
	m.addFolderLocked(parentOf(p))

	m.nextRev++
	obj, ok := m.files[lower]
	if !ok {
		m.nextID++
		obj = &memoryObject{entry: model.RemoteEntry{
			Tag:       model.EntryFile,
			ID:        fmt.Sprintf("id:%s-%d", m.name, m.nextID),
			Name:      path.Base(p),
			PathLower: lower,
		}}
		m.files[lower] = obj
	}
	obj.data = append([]byte(nil), data...)
	obj.entry.PathDisplay = p
	obj.entry.Rev = fmt.Sprintf("%09x", m.nextRev)
	obj.entry.ClientModified = clientModified
	obj.entry.ServerModified = m.clock.Now().UTC().Format(time.RFC3339)
	obj.entry.Size = int64(len(data))
	return obj
}

// cleanRemote normalizes a remote path to "/a/b" form; the root is "".
func cleanRemote(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return ""
	}
	return p
}

// parentOf returns the parent folder of a cleaned path; the root is "".
func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return ""
	}
	return dir
}

var (
	_ vj.RemoteStore = (*MemoryRemote)(nil)
	_ vj.LinkFetcher = (*MemoryRemote)(nil)
)
