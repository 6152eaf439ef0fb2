package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"vj-go/internal/database/migrations"
	"vj-go/internal/model"
	"vj-go/internal/vj"
)

// Sync run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// SQLiteStore implements the recording and tag stores using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	ids   vj.IDGenerator
	clock vj.Clock
}

// NewSQLiteStore opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
// Nil ids and clock fall back to UUIDs and the wall clock.
func NewSQLiteStore(path string, ids vj.IDGenerator, clock vj.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStoreFromDB(db, path, ids, clock), nil
}

// NewSQLiteStoreFromDB wraps an existing, already configured connection.
func NewSQLiteStoreFromDB(db *sql.DB, path string, ids vj.IDGenerator, clock vj.Clock) *SQLiteStore {
	if ids == nil {
		ids = vj.UUIDGenerator{}
	}
	if clock == nil {
		clock = vj.RealClock{}
	}
	return &SQLiteStore{db: db, path: path, ids: ids, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Sync tasks write concurrently; a single connection serializes them and
	// keeps an in-memory database from splitting into one per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Encounters

const encounterColumns = `id, uri, title, place, tags, created_date, duration, local_transcription,
	imported, dropbox_file_id, dropbox_rev, dropbox_modified, views, favorite, is_temporary`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEncounter(row rowScanner) (*model.Encounter, error) {
	var (
		e    model.Encounter
		tags string
	)
	err := row.Scan(&e.ID, &e.URI, &e.Title, &e.Place, &tags, &e.CreatedDate, &e.Duration,
		&e.LocalTranscription, &e.Imported, &e.DropboxFileID, &e.DropboxRev, &e.DropboxModified,
		&e.Views, &e.Favorite, &e.IsTemporary)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of encounter %s: %w", e.ID, err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	return &e, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

// List returns every encounter, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*model.Encounter, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+encounterColumns+" FROM encounters ORDER BY created_date DESC, id")
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	defer rows.Close()

	var out []*model.Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("listing encounters: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	return out, nil
}

// GetByID returns the encounter, or nil if it does not exist.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.Encounter, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+encounterColumns+" FROM encounters WHERE id = ?", id)
	e, err := scanEncounter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting encounter %s: %w", id, err)
	}
	return e, nil
}

// Create inserts the encounter. An empty ID is assigned from the ID generator
// and an empty CreatedDate from the clock.
func (s *SQLiteStore) Create(ctx context.Context, e *model.Encounter) (*model.Encounter, error) {
	rec := e.Clone()
	if rec.ID == "" {
		rec.ID = s.ids.New()
	}
	if rec.CreatedDate == "" {
		rec.CreatedDate = s.clock.Now().UTC().Format(time.RFC3339)
	}
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO encounters ("+encounterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URI, rec.Title, rec.Place, tags, rec.CreatedDate, rec.Duration,
		rec.LocalTranscription, rec.Imported, rec.DropboxFileID, rec.DropboxRev, rec.DropboxModified,
		rec.Views, rec.Favorite, rec.IsTemporary)
	if err != nil {
		return nil, fmt.Errorf("creating encounter: %w", err)
	}
	return rec, nil
}

// Update writes only the fields set in patch.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch model.EncounterPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.URI != nil {
		set("uri", *patch.URI)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Place != nil {
		set("place", *patch.Place)
	}
	if patch.SetTags {
		tags, err := encodeTags(patch.Tags)
		if err != nil {
			return err
		}
		set("tags", tags)
	}
	if patch.Duration != nil {
		set("duration", *patch.Duration)
	}
	if patch.LocalTranscription != nil {
		set("local_transcription", *patch.LocalTranscription)
	}
	if patch.DropboxFileID != nil {
		set("dropbox_file_id", *patch.DropboxFileID)
	}
	if patch.DropboxRev != nil {
		set("dropbox_rev", *patch.DropboxRev)
	}
	if patch.DropboxModified != nil {
		set("dropbox_modified", *patch.DropboxModified)
	}
	if patch.Views != nil {
		set("views", *patch.Views)
	}
	if patch.Favorite != nil {
		set("favorite", *patch.Favorite)
	}

	var (
		res sql.Result
		err error
	)
	if len(sets) == 0 {
		res, err = s.db.ExecContext(ctx, "UPDATE encounters SET id = id WHERE id = ?", id)
	} else {
		args = append(args, id)
		res, err = s.db.ExecContext(ctx,
			"UPDATE encounters SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	}
	if err != nil {
		return fmt.Errorf("updating encounter %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating encounter %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating encounter %s: %w", id, vj.ErrNotFound)
	}
	return nil
}

// Delete removes the encounter. The audio file is left to the caller.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM encounters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting encounter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting encounter %s: %w", id, vj.ErrNotFound)
	}
	return nil
}

// Tags

// TagStore returns a view of the database implementing vj.TagStore.
// The recording and tag stores share method names, so they cannot be the same type.
func (s *SQLiteStore) TagStore() *SQLiteTagStore {
	return &SQLiteTagStore{s: s}
}

// SQLiteTagStore implements vj.TagStore on top of a SQLiteStore.
type SQLiteTagStore struct {
	s *SQLiteStore
}

// ListAll returns predefined tags first, then custom tags, each by label.
// Soft-deleted tags are excluded.
func (t *SQLiteTagStore) ListAll(ctx context.Context) ([]*model.Tag, error) {
	rows, err := t.s.db.QueryContext(ctx, `SELECT id, label, icon, icon_family, is_custom, color
		FROM tags WHERE deleted = 0 ORDER BY is_custom, label COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var out []*model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Label, &tag.Icon, &tag.IconFamily, &tag.IsCustom, &tag.Color); err != nil {
			return nil, fmt.Errorf("listing tags: %w", err)
		}
		out = append(out, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return out, nil
}

// Create adds a custom tag. A label that matches an existing tag after
// normalization yields nil and no error.
func (t *SQLiteTagStore) Create(ctx context.Context, nt model.NewTag) (*model.Tag, error) {
	label := strings.Join(strings.Fields(nt.Label), " ")
	if label == "" {
		return nil, fmt.Errorf("creating tag: empty label")
	}

	existing, err := t.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	key := vj.NormalizeLabel(label)
	for _, e := range existing {
		if vj.NormalizeLabel(e.Label) == key {
			return nil, nil
		}
	}

	tag := &model.Tag{
		ID:         t.s.ids.New(),
		Label:      label,
		Icon:       nt.Icon,
		IconFamily: nt.IconFamily,
		Color:      nt.Color,
		IsCustom:   true,
	}
	_, err = t.s.db.ExecContext(ctx, `INSERT INTO tags (id, label, icon, icon_family, color, is_custom, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		tag.ID, tag.Label, tag.Icon, tag.IconFamily, tag.Color, t.s.clock.Now().UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, nil
		}
		return nil, fmt.Errorf("creating tag %q: %w", label, err)
	}
	return tag, nil
}

// Delete soft-deletes a custom tag. Predefined tags cannot be deleted.
func (t *SQLiteTagStore) Delete(ctx context.Context, id string) error {
	res, err := t.s.db.ExecContext(ctx,
		"UPDATE tags SET deleted = 1 WHERE id = ? AND is_custom = 1 AND deleted = 0", id)
	if err != nil {
		return fmt.Errorf("deleting tag %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting tag %s: %w", id, vj.ErrNotFound)
	}
	return nil
}

// Sync runs

// CreateSyncRun records the start of a sync pass.
func (s *SQLiteStore) CreateSyncRun(ctx context.Context, runID string) (*model.SyncRun, error) {
	started := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_runs (run_id, started_at, status) VALUES (?, ?, ?)", runID, started, RunRunning)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return &model.SyncRun{ID: id, RunID: runID, StartedAt: started, Status: RunRunning}, nil
}

// FinishSyncRun stores the final counters and status of a run.
func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *model.SyncRun) error {
	finished := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE sync_runs
		SET finished_at = ?, status = ?, total = ?, completed = ?, failed = ?, error = ?
		WHERE id = ?`,
		finished, run.Status, run.Total, run.Completed, run.Failed, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing sync run %d: %w", run.ID, vj.ErrNotFound)
	}
	run.FinishedAt = &finished
	return nil
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, started_at, finished_at, status,
		total, completed, failed, error FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncRun
	for rows.Next() {
		var (
			run      model.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.StartedAt, &finished, &run.Status,
			&run.Total, &run.Completed, &run.Failed, &run.Error); err != nil {
			return nil, fmt.Errorf("listing sync runs: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return out, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ vj.RecordingStore = (*SQLiteStore)(nil)
	_ vj.TagStore       = (*SQLiteTagStore)(nil)
)
