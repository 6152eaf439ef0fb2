package vj

import (
	"context"
	"fmt"

	"vj-go/internal/model"
)

// MissingTagFunc is called for a folder name that matches no existing tag.
// It returns the ID of a tag to use (typically one it just created), or an
// empty string to leave files in that folder untagged.
type MissingTagFunc func(ctx context.Context, folderName string) (string, error)

// TagResolver maps remote folder names to local tag IDs.
// It holds no cache between calls: tags can change between syncs.
type TagResolver struct {
	tags    TagStore
	missing MissingTagFunc
	logger  Logger
}

// NewTagResolver creates a resolver. missing may be nil, in which case
// unmatched folders are left untagged without asking.
func NewTagResolver(tags TagStore, missing MissingTagFunc, logger Logger) *TagResolver {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &TagResolver{tags: tags, missing: missing, logger: logger}
}

// Resolve returns a table from NormalizeLabel(folder name) to tag ID.
// Each distinct normalized name is looked up once per call. Folders whose
// tag could not be found or created are absent from the table; a failing
// callback is logged and never fails the resolution.
func (r *TagResolver) Resolve(ctx context.Context, folderNames []string) (map[string]string, error) {
	tags, err := r.tags.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	byLabel := make(map[string]string, len(tags))
	for _, t := range tags {
		key := NormalizeLabel(t.Label)
		if _, dup := byLabel[key]; !dup {
			byLabel[key] = t.ID
		}
	}

	resolved := make(map[string]string)
	seen := make(map[string]bool)
	for _, name := range folderNames {
		key := NormalizeLabel(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if id, ok := byLabel[key]; ok {
			resolved[key] = id
			continue
		}
		if r.missing == nil {
			r.logger.Debug("no tag for folder", "folder", name)
			continue
		}

		id, err := r.missing(ctx, name)
		if err != nil {
			r.logger.Warn("creating tag for folder failed", "folder", name, "error", err)
			continue
		}
		if id == "" {
			r.logger.Info("folder left untagged", "folder", name)
			continue
		}
		resolved[key] = id
	}

	return resolved, nil
}

// CreateTagOnConfirm returns a MissingTagFunc that asks confirm before creating
// a custom tag labelled with the folder name. A duplicate-label rejection from
// the store falls back to the existing tag with the same normalized label.
func CreateTagOnConfirm(tags TagStore, confirm func(ctx context.Context, folderName string) (bool, error)) MissingTagFunc {
	return func(ctx context.Context, folderName string) (string, error) {
		ok, err := confirm(ctx, folderName)
		if err != nil {
			return "", fmt.Errorf("confirming tag creation: %w", err)
		}
		if !ok {
			return "", nil
		}

		tag, err := tags.Create(ctx, model.NewTag{
			Label:      folderName,
			Icon:       "folder",
			IconFamily: "Feather",
		})
		if err != nil {
			return "", fmt.Errorf("creating tag %q: %w", folderName, err)
		}
		if tag != nil {
			return tag.ID, nil
		}

		existing, err := tags.ListAll(ctx)
		if err != nil {
			return "", fmt.Errorf("listing tags: %w", err)
		}
		key := NormalizeLabel(folderName)
		for _, t := range existing {
			if NormalizeLabel(t.Label) == key {
				return t.ID, nil
			}
		}
		return "", nil
	}
}
