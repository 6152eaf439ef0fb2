package model

import (
	"time"
)

// Encounter is a locally stored voice recording and its metadata.
// The audio file at URI is owned by exactly one Encounter.
type Encounter struct {
	ID                 string // UUID, stable across syncs
	URI                string // Local audio file path
	Title              string
	Place              string
	Tags               []string // Tag IDs; membership matters, order is kept for display
	CreatedDate        string   // ISO-8601, when the encounter happened
	Duration           float64  // Seconds
	LocalTranscription string   // Empty means not yet transcribed
	Imported           bool     // Sourced from an external file rather than recorded in-app
	DropboxFileID      string   // Remote identity, set once synced
	DropboxRev         string   // Remote content-version token
	DropboxModified    int64    // Remote modification time in epoch milliseconds
	Views              int
	Favorite           bool
	IsTemporary        bool // Unconfirmed draft, never synced
}

// HasTag reports whether tagID is a member of the encounter's tag set.
func (e *Encounter) HasTag(tagID string) bool {
	for _, t := range e.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out records without sharing slices.
func (e *Encounter) Clone() *Encounter {
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

// EncounterPatch lists the fields of an Encounter to change.
// Nil fields are left untouched, so concurrent patches on disjoint fields never clobber each other.
type EncounterPatch struct {
	URI                *string
	Title              *string
	Place              *string
	Tags               []string
	SetTags            bool
	Duration           *float64
	LocalTranscription *string
	DropboxFileID      *string
	DropboxRev         *string
	DropboxModified    *int64
	Views              *int
	Favorite           *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p EncounterPatch) IsEmpty() bool {
	return p.URI == nil && p.Title == nil && p.Place == nil && !p.SetTags &&
		p.Duration == nil && p.LocalTranscription == nil && p.DropboxFileID == nil &&
		p.DropboxRev == nil && p.DropboxModified == nil && p.Views == nil && p.Favorite == nil
}

// Apply writes the patch onto e.
func (p EncounterPatch) Apply(e *Encounter) {
	if p.URI != nil {
		e.URI = *p.URI
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Place != nil {
		e.Place = *p.Place
	}
	if p.SetTags {
		e.Tags = append([]string(nil), p.Tags...)
	}
	if p.Duration != nil {
		e.Duration = *p.Duration
	}
	if p.LocalTranscription != nil {
		e.LocalTranscription = *p.LocalTranscription
	}
	if p.DropboxFileID != nil {
		e.DropboxFileID = *p.DropboxFileID
	}
	if p.DropboxRev != nil {
		e.DropboxRev = *p.DropboxRev
	}
	if p.DropboxModified != nil {
		e.DropboxModified = *p.DropboxModified
	}
	if p.Views != nil {
		e.Views = *p.Views
	}
	if p.Favorite != nil {
		e.Favorite = *p.Favorite
	}
}

// Tag is a user-defined or predefined label that can be attached to encounters.
type Tag struct {
	ID         string
	Label      string // Case-insensitively unique
	Icon       string
	IconFamily string
	IsCustom   bool
	Color      string // Optional
}

// NewTag holds the fields needed to create a Tag.
type NewTag struct {
	Label      string
	Icon       string
	IconFamily string
	Color      string
}

// Remote entry kinds, matching the provider's ".tag" discriminator.
const (
	EntryFile   = "file"
	EntryFolder = "folder"
)

// RemoteEntry is a file or folder as reported by the remote store listing.
// It is wire data and is never annotated by the sync engine.
type RemoteEntry struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display,omitempty"`
	Rev            string `json:"rev,omitempty"`
	ClientModified string `json:"client_modified,omitempty"`
	ServerModified string `json:"server_modified,omitempty"`
	Size           int64  `json:"size,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (r RemoteEntry) IsFolder() bool { return r.Tag == EntryFolder }

// Modified returns the authoritative modification timestamp: client_modified when present,
// else server_modified. The raw string is returned alongside the parsed time.
// A missing or unparseable timestamp yields the zero time.
func (r RemoteEntry) Modified() (time.Time, string) {
	raw := r.ClientModified
	if raw == "" {
		raw = r.ServerModified
	}
	if raw == "" {
		return time.Time{}, ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, raw
	}
	return t, raw
}

// ModifiedMillis returns Modified as epoch milliseconds, or 0 when unknown.
func (r RemoteEntry) ModifiedMillis() int64 {
	t, _ := r.Modified()
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// TaggedRemoteFile pairs a listed remote file with the folder it was found in.
// ParentFolder is empty for files directly under the sync root.
type TaggedRemoteFile struct {
	Entry        RemoteEntry
	ParentFolder string
}

// UploadResult is what the remote store reports after an upload.
type UploadResult struct {
	ID             string `json:"id"`
	Rev            string `json:"rev"`
	ServerModified string `json:"server_modified"`
	Name           string `json:"name,omitempty"`
	PathLower      string `json:"path_lower,omitempty"`
}

// ServerModifiedMillis parses ServerModified into epoch milliseconds, or 0 when unknown.
func (u UploadResult) ServerModifiedMillis() int64 {
	t, err := time.Parse(time.RFC3339, u.ServerModified)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// Sidecar is the JSON document uploaded next to each audio file to record its transcription state.
type Sidecar struct {
	Transcription string `json:"transcription"`
	UpdatedAt     string `json:"updatedAt"`
}

// SyncRun is a recorded sync invocation.
type SyncRun struct {
	ID         int64
	RunID      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "success" or "error"
	Total      int
	Completed  int
	Failed     int
	Error      string
}
