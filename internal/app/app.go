package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vj-go/internal/audio"
	"vj-go/internal/config"
	"vj-go/internal/database"
	"vj-go/internal/dropbox"
	"vj-go/internal/encryption"
	"vj-go/internal/fs"
	"vj-go/internal/model"
	"vj-go/internal/remote"
	"vj-go/internal/transcribe"
	"vj-go/internal/vj"
)

// Options tune how a VJApp is built. The zero value is production behaviour.
type Options struct {
	Verbose bool           // log at DEBUG instead of INFO
	Stderr  io.Writer      // log mirror, defaults to os.Stderr
	Clock   vj.Clock       // defaults to the real clock
	IDs     vj.IDGenerator // defaults to random UUIDs

	// Tracing overrides the [tracing] config section with a caller-owned provider.
	Tracing trace.TracerProvider
}

// SyncOptions carry the interactive pieces of a sync.
type SyncOptions struct {
	// Passphrase unlocks the stored Dropbox token. Only called for the dropbox remote.
	Passphrase func() (string, error)

	// Confirm asks whether to create a tag for an unmatched folder when
	// sync.create_missing_tags is "prompt". Nil leaves such folders untagged.
	Confirm func(ctx context.Context, folder string) (bool, error)

	// OnProgress receives engine state snapshots.
	OnProgress func(vj.State)
}

// VJApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type VJApp struct {
	cfg         *config.Config
	store       *database.SQLiteStore
	files       *fs.OSFileStore
	encryptor   vj.Encryptor
	transcriber vj.Transcriber
	prober      vj.AudioProber
	ignore      *fs.IgnoreMatcher
	clock       vj.Clock
	logger      vj.Logger
	op          *Operation
	logCloser   io.Closer

	tracing  trace.TracerProvider
	shutdown func(context.Context) error // flushes spans; nil when the caller owns the provider
}

// NewVJApp creates a fully wired VJApp from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "ImportRecording").
// The caller must call Close when done.
func NewVJApp(cfg *config.Config, operation string, opts Options) (*VJApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = vj.RealClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = vj.UUIDGenerator{}
	}

	op := NewOperation(operation, clock.Now())
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slogger, logCloser, err := newLogger(cfg.LogDir, op.RunID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &VJApp{cfg: cfg, clock: clock, logger: logger, op: op, logCloser: logCloser, tracing: opts.Tracing}
	if a.tracing == nil {
		tp, err := newTracerProvider(context.Background(), cfg.Tracing, op.RunID)
		if err != nil {
			a.close()
			return nil, err
		}
		if tp != nil {
			otel.SetTracerProvider(tp)
			a.tracing, a.shutdown = tp, tp.Shutdown
		}
	}
	if err := a.init(ids); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *VJApp) init(ids vj.IDGenerator) error {
	store, err := database.NewStoreFromConfig(a.cfg.Database, ids, a.clock)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.store = store

	if err := store.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	if a.files, err = fs.NewOSFileStore(a.cfg.AudioDir); err != nil {
		return fmt.Errorf("creating audio directory: %w", err)
	}

	if a.encryptor, err = encryption.NewEncryptorFromConfig(a.cfg.Encryption); err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	if a.transcriber, err = transcribe.NewTranscriberFromConfig(a.cfg.Transcription, a.logger); err != nil {
		return fmt.Errorf("creating transcriber: %w", err)
	}
	a.prober = audio.NewProber()

	extra, err := fs.ParseIgnoreFile(filepath.Join(a.cfg.AudioDir, fs.IgnoreFile))
	if err != nil {
		return err
	}
	a.ignore = fs.NewIgnoreMatcher(append(append([]string(nil), a.cfg.Sync.Ignore...), extra...))
	return nil
}

// RunID identifies this invocation in logs and in the sync history.
func (a *VJApp) RunID() string {
	return a.op.RunID
}

// Sync runs one two-way sync pass and records it in the sync history.
func (a *VJApp) Sync(ctx context.Context, opts SyncOptions) (*vj.Report, error) {
	if !a.op.Persisted() {
		run, err := a.store.CreateSyncRun(ctx, a.op.RunID)
		if err != nil {
			return nil, err
		}
		a.op.Run = run
	}

	report, state, err := a.sync(ctx, opts)
	a.op.Record(report, state, err)
	return report, err
}

func (a *VJApp) sync(ctx context.Context, opts SyncOptions) (*vj.Report, vj.State, error) {
	rs, err := a.newRemote(ctx, opts.Passphrase)
	if err != nil {
		a.logger.Error("connecting to remote failed", "type", a.cfg.Remote.Type, "error", err)
		return nil, vj.State{Error: err.Error()}, err
	}

	files := a.files
	if fetcher, ok := rs.(vj.LinkFetcher); ok {
		if files, err = fs.NewOSFileStore(a.cfg.AudioDir, fs.WithFetcher(remote.MemoryLinkScheme, fetcher)); err != nil {
			return nil, vj.State{Error: err.Error()}, err
		}
	}

	root := a.cfg.Remote.RootPath
	if root == "" {
		root = config.DefaultRootPath
	}

	engine := vj.NewEngine(vj.Dependencies{
		Recordings:  a.store,
		Tags:        a.store.TagStore(),
		Remote:      rs,
		Files:       files,
		Transcriber: a.transcriber,
		Prober:      a.prober,
		Logger:      a.logger,
		Clock:       a.clock,
		Tracing:     a.tracing,
	}, vj.Options{
		RootPath:    root,
		MissingTag:  a.missingTag(opts.Confirm),
		Concurrency: a.cfg.Sync.Concurrency,
		Ignore:      a.ignore,
		OnProgress:  opts.OnProgress,
	})

	a.logger.Info("sync started", "remote", a.cfg.Remote.Type, "root", root)
	report, err := engine.TwoWaySync(ctx)
	return report, engine.State(), err
}

func (a *VJApp) missingTag(confirm func(context.Context, string) (bool, error)) vj.MissingTagFunc {
	tags := a.store.TagStore()
	switch a.cfg.Sync.CreateMissingTags {
	case config.CreateTagsAlways:
		return vj.CreateTagOnConfirm(tags, func(context.Context, string) (bool, error) { return true, nil })
	case config.CreateTagsNever:
		return nil
	default:
		if confirm == nil {
			return nil
		}
		return vj.CreateTagOnConfirm(tags, confirm)
	}
}

func (a *VJApp) newRemote(ctx context.Context, passphrase func() (string, error)) (vj.RemoteStore, error) {
	deps := remote.Deps{Clock: a.clock, Logger: a.logger}
	if a.cfg.Remote.Type == "dropbox" || a.cfg.Remote.Type == "" {
		tokens, err := a.unlockTokens(passphrase)
		if err != nil {
			return nil, err
		}
		deps.Tokens = tokens
	}
	return remote.NewRemoteStoreFromConfig(ctx, a.cfg.Remote, deps)
}

func (a *VJApp) unlockTokens(passphrase func() (string, error)) (*dropbox.FileTokenStore, error) {
	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run 'vj auth init' first")
	}
	if passphrase == nil {
		return nil, fmt.Errorf("a passphrase is required to unlock the dropbox token")
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dec, err := a.encryptor.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking keys: %w", err)
	}
	return dropbox.NewFileTokenStore(a.cfg.Remote.TokenPath, a.encryptor, dec), nil
}

// AuthInit generates the key pair that seals the Dropbox token.
func (a *VJApp) AuthInit(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	a.logger.Info("encryption keys created", "public_key", a.cfg.Encryption.PublicKeyPath)
	return nil
}

// Login runs the Dropbox PKCE flow. readCode is shown the authorization URL
// and returns the code the user pasted. The token is sealed with the public
// key, so no passphrase is needed.
func (a *VJApp) Login(ctx context.Context, readCode func(authURL string) (string, error)) error {
	if a.cfg.Remote.AppKey == "" {
		return fmt.Errorf("remote.app_key is not set")
	}
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys not found: run 'vj auth init' first")
	}

	login := dropbox.NewLogin(dropbox.OAuthConfig(a.cfg.Remote.AppKey))
	code, err := readCode(login.AuthCodeURL())
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	tok, err := login.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := dropbox.NewFileTokenStore(a.cfg.Remote.TokenPath, a.encryptor, nil).Save(ctx, tok); err != nil {
		return err
	}
	a.logger.Info("dropbox login saved", "token_path", a.cfg.Remote.TokenPath)
	return nil
}

// ImportRecording copies an audio file into the audio directory and creates an
// imported encounter for it. tagLabels must name existing tags.
func (a *VJApp) ImportRecording(ctx context.Context, rawPath string, tagLabels []string) (*model.Encounter, error) {
	src, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rawPath, err)
	}

	tagIDs, err := a.tagIDs(ctx, tagLabels)
	if err != nil {
		return nil, err
	}

	dest, err := a.files.Import(src)
	if err != nil {
		return nil, err
	}

	duration, err := a.prober.Duration(dest)
	if err != nil {
		a.logger.Warn("probing duration failed", "path", dest, "error", err)
	}

	enc, err := a.store.Create(ctx, &model.Encounter{
		URI:         dest,
		Title:       vj.TitleFromName(filepath.Base(src)),
		Tags:        tagIDs,
		CreatedDate: info.ModTime().UTC().Format(time.RFC3339),
		Duration:    duration,
		Imported:    true,
	})
	if err != nil {
		if rmErr := a.files.Remove(dest); rmErr != nil {
			a.logger.Warn("removing imported file failed", "path", dest, "error", rmErr)
		}
		return nil, err
	}
	a.logger.Info("recording imported", "encounter", enc.ID, "path", dest)
	return enc, nil
}

func (a *VJApp) tagIDs(ctx context.Context, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	tags, err := a.store.TagStore().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]string, len(tags))
	for _, t := range tags {
		byLabel[vj.NormalizeLabel(t.Label)] = t.ID
	}

	var ids []string
	seen := make(map[string]bool)
	for _, label := range labels {
		id, ok := byLabel[vj.NormalizeLabel(label)]
		if !ok {
			return nil, fmt.Errorf("unknown tag %q", label)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListRecordings returns every encounter, newest first.
func (a *VJApp) ListRecordings(ctx context.Context) ([]*model.Encounter, error) {
	return a.store.List(ctx)
}

// DeleteRecording removes an encounter and its local audio file. The remote
// copy is left alone.
func (a *VJApp) DeleteRecording(ctx context.Context, id string) error {
	enc, err := a.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if enc == nil {
		return fmt.Errorf("encounter %s: %w", id, vj.ErrNotFound)
	}
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	if enc.URI != "" {
		if err := a.files.Remove(enc.URI); err != nil {
			a.logger.Warn("removing audio failed", "path", enc.URI, "error", err)
		}
	}
	a.logger.Info("recording deleted", "encounter", id)
	return nil
}

// ListTags returns predefined and custom tags.
func (a *VJApp) ListTags(ctx context.Context) ([]*model.Tag, error) {
	return a.store.TagStore().ListAll(ctx)
}

// AddTag creates a custom tag. Labels are unique regardless of case.
func (a *VJApp) AddTag(ctx context.Context, label string) (*model.Tag, error) {
	tag, err := a.store.TagStore().Create(ctx, model.NewTag{Label: label, Icon: "tag", IconFamily: "Feather"})
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, fmt.Errorf("tag %q already exists", strings.TrimSpace(label))
	}
	a.logger.Info("tag created", "tag", tag.ID, "label", tag.Label)
	return tag, nil
}

// DeleteTag soft-deletes a custom tag.
func (a *VJApp) DeleteTag(ctx context.Context, id string) error {
	return a.store.TagStore().Delete(ctx, id)
}

// History returns the most recent sync runs.
func (a *VJApp) History(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	return a.store.ListSyncRuns(ctx, limit)
}

// BackupDatabase writes a consistent copy of the database to rawPath, which must not exist.
func (a *VJApp) BackupDatabase(rawPath string) (string, error) {
	dest, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%s already exists", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", dest, err)
	}
	if err := a.store.BackupTo(dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Close finalizes the sync run, if one was recorded, and closes all resources.
func (a *VJApp) Close() error {
	var firstErr error
	if a.op.Persisted() {
		if err := a.store.FinishSyncRun(context.Background(), a.op.Run); err != nil {
			firstErr = fmt.Errorf("finishing sync run: %w", err)
		}
	}
	if err := a.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *VJApp) close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("flushing traces failed", "error", err)
		}
		cancel()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}
