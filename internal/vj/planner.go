package vj

import (
	"path/filepath"
	"strings"

	"vj-go/internal/model"
)

// WorkKind identifies what a scheduled task does.
type WorkKind string

const (
	KindDownload   WorkKind = "download"
	KindTagUpdate  WorkKind = "tag-update"
	KindRefresh    WorkKind = "refresh"
	KindUpload     WorkKind = "upload"
	KindTranscribe WorkKind = "transcribe"
)

// WorkItem is one unit of sync work decided by the planner. The planner does
// no I/O; the engine turns each item into a Task.
type WorkItem struct {
	Kind      WorkKind
	Remote    *model.TaggedRemoteFile // nil for uploads and transcriptions
	Encounter *model.Encounter        // nil for downloads
	TagID     string                  // folder tag for downloads and tag updates
}

// RemoteIndex looks up listed remote files by remote ID and by file name.
type RemoteIndex struct {
	byID   map[string]*model.TaggedRemoteFile
	byName map[string]*model.TaggedRemoteFile
}

// NewRemoteIndex indexes files. On a name collision the first listed file wins.
func NewRemoteIndex(files []model.TaggedRemoteFile) *RemoteIndex {
	idx := &RemoteIndex{
		byID:   make(map[string]*model.TaggedRemoteFile, len(files)),
		byName: make(map[string]*model.TaggedRemoteFile, len(files)),
	}
	for i := range files {
		f := &files[i]
		if f.Entry.ID != "" {
			idx.byID[f.Entry.ID] = f
		}
		if _, ok := idx.byName[f.Entry.Name]; !ok {
			idx.byName[f.Entry.Name] = f
		}
	}
	return idx
}

// Match finds the remote file for an encounter: by remote ID when linked,
// otherwise by the local file name (as-is, then sanitized).
func (idx *RemoteIndex) Match(e *model.Encounter) *model.TaggedRemoteFile {
	if e.DropboxFileID != "" {
		if f, ok := idx.byID[e.DropboxFileID]; ok {
			return f
		}
	}
	if e.URI == "" {
		return nil
	}
	name := filepath.Base(e.URI)
	if f, ok := idx.byName[name]; ok {
		return f
	}
	if f, ok := idx.byName[SanitizeFilename(name)]; ok {
		return f
	}
	return nil
}

// LocalIndex looks up non-temporary encounters by remote ID when linked,
// else by the base name of their audio file.
type LocalIndex struct {
	byRemoteID map[string]*model.Encounter
	byName     map[string]*model.Encounter
}

// NewLocalIndex indexes encounters, leaving out temporary drafts.
func NewLocalIndex(encounters []*model.Encounter) *LocalIndex {
	idx := &LocalIndex{
		byRemoteID: make(map[string]*model.Encounter),
		byName:     make(map[string]*model.Encounter),
	}
	for _, e := range encounters {
		if e.IsTemporary {
			continue
		}
		if e.DropboxFileID != "" {
			idx.byRemoteID[e.DropboxFileID] = e
			continue
		}
		if e.URI != "" {
			idx.byName[filepath.Base(e.URI)] = e
		}
	}
	return idx
}

// Match finds the encounter for a remote entry: by ID, falling back to file name
// for files that were never linked. A name match claims the encounter, so
// same-named files in other folders do not match it again.
func (idx *LocalIndex) Match(entry model.RemoteEntry) *model.Encounter {
	if e, ok := idx.byRemoteID[entry.ID]; ok {
		return e
	}
	if e, ok := idx.byName[entry.Name]; ok {
		delete(idx.byName, entry.Name)
		return e
	}
	return nil
}

// PlanRemoteChanges decides the download pass. folderTags is keyed by
// NormalizeLabel(folder name); audioMissing reports whether an encounter's
// audio file is absent (or empty) on disk.
func PlanRemoteChanges(files []model.TaggedRemoteFile, folderTags map[string]string, local *LocalIndex, audioMissing func(*model.Encounter) bool) []WorkItem {
	var items []WorkItem
	for i := range files {
		f := &files[i]
		tagID := ""
		if f.ParentFolder != "" {
			tagID = folderTags[NormalizeLabel(f.ParentFolder)]
		}

		enc := local.Match(f.Entry)
		if enc == nil {
			items = append(items, WorkItem{Kind: KindDownload, Remote: f, TagID: tagID})
			continue
		}

		if tagID != "" && !enc.HasTag(tagID) {
			items = append(items, WorkItem{Kind: KindTagUpdate, Remote: f, Encounter: enc, TagID: tagID})
		}

		missing := audioMissing(enc)
		if missing || enc.DropboxRev != f.Entry.Rev {
			if missing || f.Entry.ModifiedMillis() > enc.DropboxModified {
				items = append(items, WorkItem{Kind: KindRefresh, Remote: f, Encounter: enc})
			}
		}
	}
	return items
}

// PlanUploads decides the upload pass against the remote listing taken at the
// start of the sync.
func PlanUploads(encounters []*model.Encounter, remote *RemoteIndex, ignore NameMatcher) []WorkItem {
	var items []WorkItem
	for _, e := range encounters {
		if e.IsTemporary || e.URI == "" {
			continue
		}
		name := filepath.Base(e.URI)
		if IsSidecarName(name) || (ignore != nil && ignore.Match(name)) {
			continue
		}

		match := remote.Match(e)
		if match == nil {
			items = append(items, WorkItem{Kind: KindUpload, Encounter: e})
			continue
		}
		if e.DropboxModified > match.Entry.ModifiedMillis() && e.DropboxRev != match.Entry.Rev {
			items = append(items, WorkItem{Kind: KindUpload, Remote: match, Encounter: e})
		}
	}
	return items
}

// PlanTranscriptionBackfill picks encounters whose transcription is still empty
// and whose audio file exists with content.
func PlanTranscriptionBackfill(encounters []*model.Encounter, audioMissing func(*model.Encounter) bool) []WorkItem {
	var items []WorkItem
	for _, e := range encounters {
		if e.IsTemporary || e.URI == "" || strings.TrimSpace(e.LocalTranscription) != "" {
			continue
		}
		if audioMissing(e) {
			continue
		}
		items = append(items, WorkItem{Kind: KindTranscribe, Encounter: e})
	}
	return items
}
