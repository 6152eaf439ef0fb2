package vj

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vj-go/internal/model"
)

// Progress counts finished tasks across the download and upload passes.
type Progress struct {
	Completed int
	Total     int
}

// State is the observable status of the engine.
type State struct {
	Syncing  bool
	Error    string // message of the last fatal error, empty when none
	Progress Progress
}

// Report summarizes one sync pass.
type Report struct {
	Results     []TaskResult
	Downloaded  int
	Refreshed   int
	TagUpdated  int
	Uploaded    int
	Transcribed int
	Failed      int
}

func (r *Report) add(results []TaskResult) {
	for _, res := range results {
		r.Results = append(r.Results, res)
		if res.Status == TaskFailed {
			r.Failed++
			continue
		}
		switch res.Kind {
		case KindDownload:
			r.Downloaded++
		case KindRefresh:
			r.Refreshed++
		case KindTagUpdate:
			r.TagUpdated++
		case KindUpload:
			r.Uploaded++
		case KindTranscribe:
			r.Transcribed++
		}
	}
}

// TracerName is the instrumentation scope of engine spans.
const TracerName = "vj-go/internal/vj"

// Dependencies are the collaborators an Engine works with.
type Dependencies struct {
	Recordings  RecordingStore
	Tags        TagStore
	Remote      RemoteStore
	Files       FileStore
	Transcriber Transcriber
	Prober      AudioProber
	Logger      Logger
	Clock       Clock

	// Tracing receives pass and task spans. Nil uses the global provider.
	Tracing trace.TracerProvider
}

// Options configure a sync pass.
type Options struct {
	// RootPath is the remote folder that mirrors the local collection.
	RootPath string

	// MissingTag is asked for folders that match no tag. Nil leaves them untagged.
	MissingTag MissingTagFunc

	// Concurrency bounds how many tasks run at once. Zero means unbounded.
	Concurrency int

	// Ignore leaves matching file names out of both directions.
	Ignore NameMatcher

	// OnProgress, if set, is called with a snapshot whenever the state changes.
	OnProgress func(State)
}

// Engine performs bidirectional reconciliation between the local recording
// store and a remote folder. It does not guard against overlapping calls to
// TwoWaySync; callers check State().Syncing.
type Engine struct {
	deps     Dependencies
	opts     Options
	resolver *TagResolver
	tracer   trace.Tracer

	mu    sync.Mutex
	state State
}

// NewEngine creates an Engine. Nil Logger, Clock, Transcriber or Prober fall
// back to no-op implementations.
func NewEngine(deps Dependencies, opts Options) *Engine {
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Transcriber == nil {
		deps.Transcriber = NopTranscriber{}
	}
	if deps.Tracing == nil {
		deps.Tracing = otel.GetTracerProvider()
	}
	return &Engine{
		deps:     deps,
		opts:     opts,
		resolver: NewTagResolver(deps.Tags, opts.MissingTag, deps.Logger),
		tracer:   deps.Tracing.Tracer(TracerName),
	}
}

// State returns a snapshot of the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) update(fn func(*State)) {
	e.mu.Lock()
	fn(&e.state)
	snapshot := e.state
	e.mu.Unlock()

	if e.opts.OnProgress != nil {
		e.opts.OnProgress(snapshot)
	}
}

// TwoWaySync runs one full pass: enumerate the remote, resolve folder tags,
// download and refresh remote changes, then upload local changes, then
// backfill missing transcriptions. Individual task failures are logged and
// reported but never fail the pass; enumeration and indexing failures do,
// and set State().Error.
func (e *Engine) TwoWaySync(ctx context.Context) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "vj.TwoWaySync", trace.WithAttributes(attribute.String("vj.root", e.opts.RootPath)))
	defer span.End()

	e.update(func(s *State) {
		*s = State{Syncing: true}
	})

	report, err := e.sync(ctx)

	e.update(func(s *State) {
		s.Syncing = false
		if err != nil {
			s.Error = err.Error()
		}
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.deps.Logger.Error("sync failed", "error", err)
		return report, err
	}

	span.SetAttributes(
		attribute.Int("vj.downloaded", report.Downloaded),
		attribute.Int("vj.uploaded", report.Uploaded),
		attribute.Int("vj.failed", report.Failed),
	)
	e.deps.Logger.Info("sync complete",
		"downloaded", report.Downloaded,
		"refreshed", report.Refreshed,
		"tagged", report.TagUpdated,
		"uploaded", report.Uploaded,
		"transcribed", report.Transcribed,
		"failed", report.Failed,
	)
	return report, nil
}

func (e *Engine) sync(ctx context.Context) (*Report, error) {
	report := &Report{}

	files, folders, err := e.enumerate(ctx)
	if err != nil {
		return report, fmt.Errorf("listing remote files: %w", err)
	}

	folderTags, err := e.resolver.Resolve(ctx, folders)
	if err != nil {
		return report, fmt.Errorf("resolving folder tags: %w", err)
	}

	encounters, err := e.deps.Recordings.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing recordings: %w", err)
	}

	remoteIdx := NewRemoteIndex(files)
	localIdx := NewLocalIndex(encounters)

	downloads := PlanRemoteChanges(files, folderTags, localIdx, e.audioMissing)
	report.add(e.runPass(ctx, "download", downloads, true))

	// Re-read so freshly downloaded and refreshed records are seen as already remote.
	encounters, err = e.deps.Recordings.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing recordings: %w", err)
	}
	uploads := PlanUploads(encounters, remoteIdx, e.opts.Ignore)
	report.add(e.runPass(ctx, "upload", uploads, true))

	encounters, err = e.deps.Recordings.List(ctx)
	if err != nil {
		return report, fmt.Errorf("refreshing recordings: %w", err)
	}
	tags, err := e.deps.Tags.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("refreshing tags: %w", err)
	}
	e.deps.Logger.Debug("collections refreshed", "recordings", len(encounters), "tags", len(tags))

	backfill := PlanTranscriptionBackfill(encounters, e.audioMissing)
	report.add(e.runPass(ctx, "transcription", backfill, false))

	return report, nil
}

// enumerate lists the root and each immediate subfolder. Sidecars and ignored
// names are dropped; nothing below depth one is visited.
func (e *Engine) enumerate(ctx context.Context) ([]model.TaggedRemoteFile, []string, error) {
	ctx, span := e.tracer.Start(ctx, "vj.enumerate")
	defer span.End()

	root, err := e.deps.Remote.ListFiles(ctx, e.opts.RootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %q: %w", e.opts.RootPath, err)
	}

	var files []model.TaggedRemoteFile
	var folders []string
	for _, entry := range root {
		if entry.IsFolder() {
			folders = append(folders, entry.Name)
			continue
		}
		if e.skipName(entry.Name) {
			continue
		}
		files = append(files, model.TaggedRemoteFile{Entry: entry})
	}

	for _, name := range folders {
		children, err := e.deps.Remote.ListFiles(ctx, e.folderPath(root, name))
		if err != nil {
			return nil, nil, fmt.Errorf("listing folder %q: %w", name, err)
		}
		for _, entry := range children {
			if entry.IsFolder() || e.skipName(entry.Name) {
				continue
			}
			files = append(files, model.TaggedRemoteFile{Entry: entry, ParentFolder: name})
		}
	}

	span.SetAttributes(attribute.Int("vj.files", len(files)), attribute.Int("vj.folders", len(folders)))
	e.deps.Logger.Debug("remote enumerated", "files", len(files), "folders", len(folders))
	return files, folders, nil
}

func (e *Engine) folderPath(root []model.RemoteEntry, name string) string {
	for _, entry := range root {
		if entry.IsFolder() && entry.Name == name && entry.PathLower != "" {
			return entry.PathLower
		}
	}
	return JoinRemotePath(e.opts.RootPath, name)
}

func (e *Engine) skipName(name string) bool {
	return IsSidecarName(name) || (e.opts.Ignore != nil && e.opts.Ignore.Match(name))
}

// audioMissing treats an absent or zero-byte audio file as missing.
func (e *Engine) audioMissing(enc *model.Encounter) bool {
	if enc.URI == "" {
		return true
	}
	info, err := e.deps.Files.Stat(enc.URI)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.deps.Logger.Warn("stat audio failed", "encounter", enc.ID, "path", enc.URI, "error", err)
		}
		return true
	}
	return info.Size() == 0
}

func (e *Engine) runPass(ctx context.Context, name string, items []WorkItem, counted bool) []TaskResult {
	if len(items) == 0 {
		return nil
	}
	ctx, span := e.tracer.Start(ctx, "vj.pass."+name, trace.WithAttributes(attribute.Int("vj.tasks", len(items))))
	defer span.End()

	tasks := make([]Task, len(items))
	for i, item := range items {
		tasks[i] = e.task(item)
	}

	if counted {
		e.update(func(s *State) { s.Progress.Total += len(tasks) })
	}

	log := e.deps.Logger.With("pass", name)
	log.Debug("pass started", "tasks", len(tasks))
	return RunTasks(ctx, tasks, e.opts.Concurrency, func(res TaskResult) {
		if res.Status == TaskFailed {
			log.Warn("task failed",
				"task", string(res.Kind),
				"encounter", res.EncounterID,
				"remote", res.Remote,
				"error", res.Err,
			)
		}
		if counted {
			e.update(func(s *State) { s.Progress.Completed++ })
		}
	})
}

func (e *Engine) task(item WorkItem) Task {
	t := Task{Kind: item.Kind}
	if item.Encounter != nil {
		t.EncounterID = item.Encounter.ID
	}
	if item.Remote != nil {
		t.Remote = item.Remote.Entry.PathLower
	}

	var run func(ctx context.Context) (string, error)
	switch item.Kind {
	case KindDownload:
		run = func(ctx context.Context) (string, error) { return e.download(ctx, *item.Remote, item.TagID) }
	case KindTagUpdate:
		run = func(ctx context.Context) (string, error) { return e.addTag(ctx, item.Encounter.ID, item.TagID) }
	case KindRefresh:
		run = func(ctx context.Context) (string, error) { return e.refresh(ctx, item.Encounter, *item.Remote) }
	case KindUpload:
		run = func(ctx context.Context) (string, error) { return e.upload(ctx, item.Encounter) }
	case KindTranscribe:
		run = func(ctx context.Context) (string, error) { return e.backfill(ctx, item.Encounter) }
	default:
		run = func(context.Context) (string, error) { return "", fmt.Errorf("unknown task kind %q", item.Kind) }
	}

	t.Run = func(ctx context.Context) (string, error) {
		ctx, span := e.tracer.Start(ctx, "vj.task."+string(item.Kind),
			trace.WithAttributes(attribute.String("vj.encounter", t.EncounterID), attribute.String("vj.remote", t.Remote)))
		defer span.End()
		id, err := run(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return id, err
	}
	return t
}

// download creates a new encounter from a remote file that has no local match.
func (e *Engine) download(ctx context.Context, f model.TaggedRemoteFile, tagID string) (string, error) {
	link, err := e.deps.Remote.DownloadLink(ctx, remotePath(f.Entry))
	if err != nil {
		return "", fmt.Errorf("getting download link: %w", err)
	}

	dest, err := e.deps.Files.NewAudioPath(f.Entry.Name)
	if err != nil {
		return "", fmt.Errorf("choosing audio path: %w", err)
	}
	if err := e.deps.Files.Download(ctx, link, dest); err != nil {
		return "", fmt.Errorf("downloading %s: %w", f.Entry.Name, err)
	}

	_, created := f.Entry.Modified()
	enc := &model.Encounter{
		URI:                dest,
		Title:              TitleFromName(f.Entry.Name),
		CreatedDate:        created,
		Duration:           e.probe(dest),
		LocalTranscription: e.transcribe(ctx, dest),
		Imported:           true,
		DropboxFileID:      f.Entry.ID,
		DropboxRev:         f.Entry.Rev,
		DropboxModified:    f.Entry.ModifiedMillis(),
	}
	if enc.CreatedDate == "" {
		enc.CreatedDate = e.deps.Clock.Now().UTC().Format(time.RFC3339)
	}
	if tagID != "" {
		enc.Tags = []string{tagID}
	}

	stored, err := e.deps.Recordings.Create(ctx, enc)
	if err != nil {
		if rmErr := e.deps.Files.Remove(dest); rmErr != nil {
			e.deps.Logger.Warn("removing orphaned download failed", "path", dest, "error", rmErr)
		}
		return "", fmt.Errorf("creating encounter: %w", err)
	}

	e.deps.Logger.Info("downloaded", "encounter", stored.ID, "remote", f.Entry.PathLower, "tag", tagID)
	return stored.ID, nil
}

// addTag appends the folder tag to the encounter's tag set, touching only tags.
func (e *Engine) addTag(ctx context.Context, id, tagID string) (string, error) {
	current, err := e.deps.Recordings.GetByID(ctx, id)
	if err != nil {
		return id, fmt.Errorf("loading encounter: %w", err)
	}
	if current == nil {
		return id, fmt.Errorf("encounter %s: %w", id, ErrNotFound)
	}
	if current.HasTag(tagID) {
		return id, nil
	}

	tags := append(append([]string(nil), current.Tags...), tagID)
	if err := e.deps.Recordings.Update(ctx, id, model.EncounterPatch{Tags: tags, SetTags: true}); err != nil {
		return id, fmt.Errorf("updating tags: %w", err)
	}
	e.deps.Logger.Info("tag added", "encounter", id, "tag", tagID)
	return id, nil
}

// refresh re-downloads a remote file over its matched encounter. An existing
// transcription is never replaced.
func (e *Engine) refresh(ctx context.Context, enc *model.Encounter, f model.TaggedRemoteFile) (string, error) {
	link, err := e.deps.Remote.DownloadLink(ctx, remotePath(f.Entry))
	if err != nil {
		return enc.ID, fmt.Errorf("getting download link: %w", err)
	}

	dest := enc.URI
	if dest == "" {
		if dest, err = e.deps.Files.NewAudioPath(f.Entry.Name); err != nil {
			return enc.ID, fmt.Errorf("choosing audio path: %w", err)
		}
	}
	if err := e.deps.Files.Download(ctx, link, dest); err != nil {
		return enc.ID, fmt.Errorf("downloading %s: %w", f.Entry.Name, err)
	}

	duration := e.probe(dest)
	modified := f.Entry.ModifiedMillis()
	patch := model.EncounterPatch{
		URI:             &dest,
		Duration:        &duration,
		DropboxFileID:   &f.Entry.ID,
		DropboxRev:      &f.Entry.Rev,
		DropboxModified: &modified,
	}

	current, err := e.deps.Recordings.GetByID(ctx, enc.ID)
	if err != nil {
		return enc.ID, fmt.Errorf("loading encounter: %w", err)
	}
	if current == nil {
		return enc.ID, fmt.Errorf("encounter %s: %w", enc.ID, ErrNotFound)
	}
	if strings.TrimSpace(current.LocalTranscription) == "" {
		if text := e.transcribe(ctx, dest); text != "" {
			patch.LocalTranscription = &text
		}
	}

	if err := e.deps.Recordings.Update(ctx, enc.ID, patch); err != nil {
		return enc.ID, fmt.Errorf("updating encounter: %w", err)
	}
	e.deps.Logger.Info("refreshed", "encounter", enc.ID, "remote", f.Entry.PathLower, "rev", f.Entry.Rev)
	return enc.ID, nil
}

// upload sends the audio file and its sidecar to the root folder, then links
// the encounter to the uploaded file.
func (e *Engine) upload(ctx context.Context, enc *model.Encounter) (string, error) {
	name := SanitizeFilename(filepath.Base(enc.URI))

	var modified *time.Time
	if t, err := time.Parse(time.RFC3339, enc.CreatedDate); err == nil {
		modified = &t
	}

	res, err := e.deps.Remote.UploadFile(ctx, enc.URI, JoinRemotePath(e.opts.RootPath, name), modified)
	if err != nil {
		return enc.ID, fmt.Errorf("uploading audio: %w", err)
	}

	sidecar, err := EncodeSidecar(enc.LocalTranscription, e.deps.Clock.Now())
	if err != nil {
		return enc.ID, err
	}
	sidecarName := SidecarName(name)
	tmp, err := e.deps.Files.WriteTempFile(sidecarName, sidecar)
	if err != nil {
		return enc.ID, fmt.Errorf("writing sidecar: %w", err)
	}
	defer func() {
		if err := e.deps.Files.Remove(tmp); err != nil {
			e.deps.Logger.Warn("removing sidecar temp file failed", "path", tmp, "error", err)
		}
	}()
	if _, err := e.deps.Remote.UploadFile(ctx, tmp, JoinRemotePath(e.opts.RootPath, sidecarName), nil); err != nil {
		return enc.ID, fmt.Errorf("uploading sidecar: %w", err)
	}

	serverModified := res.ServerModifiedMillis()
	if serverModified == 0 {
		serverModified = e.deps.Clock.Now().UnixMilli()
	}
	patch := model.EncounterPatch{
		DropboxFileID:   &res.ID,
		DropboxRev:      &res.Rev,
		DropboxModified: &serverModified,
	}
	if err := e.deps.Recordings.Update(ctx, enc.ID, patch); err != nil {
		return enc.ID, fmt.Errorf("linking encounter: %w", err)
	}

	e.deps.Logger.Info("uploaded", "encounter", enc.ID, "remote", res.PathLower, "rev", res.Rev)
	return enc.ID, nil
}

// backfill transcribes an encounter that still has no transcription.
func (e *Engine) backfill(ctx context.Context, enc *model.Encounter) (string, error) {
	text := e.transcribe(ctx, enc.URI)
	if text == "" {
		return enc.ID, nil
	}

	current, err := e.deps.Recordings.GetByID(ctx, enc.ID)
	if err != nil {
		return enc.ID, fmt.Errorf("loading encounter: %w", err)
	}
	if current == nil || strings.TrimSpace(current.LocalTranscription) != "" {
		return enc.ID, nil
	}

	if err := e.deps.Recordings.Update(ctx, enc.ID, model.EncounterPatch{LocalTranscription: &text}); err != nil {
		return enc.ID, fmt.Errorf("saving transcription: %w", err)
	}
	e.deps.Logger.Info("transcription backfilled", "encounter", enc.ID)
	return enc.ID, nil
}

// transcribe fails soft: errors are logged and yield an empty transcription.
func (e *Engine) transcribe(ctx context.Context, path string) string {
	text, err := e.deps.Transcriber.Transcribe(ctx, path)
	if err != nil {
		e.deps.Logger.Warn("transcription failed", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// probe returns 0 when the duration cannot be determined.
func (e *Engine) probe(path string) float64 {
	if e.deps.Prober == nil {
		return 0
	}
	d, err := e.deps.Prober.Duration(path)
	if err != nil {
		e.deps.Logger.Warn("probing duration failed", "path", path, "error", err)
		return 0
	}
	return d
}

func remotePath(entry model.RemoteEntry) string {
	if entry.PathLower != "" {
		return entry.PathLower
	}
	return entry.PathDisplay
}

// JoinRemotePath joins a remote folder and a file name with a single slash.
// An empty folder means the store root.
func JoinRemotePath(folder, name string) string {
	return strings.TrimRight(folder, "/") + "/" + strings.TrimLeft(name, "/")
}
