package vj

import (
	"context"

	"vj-go/internal/model"
)

// RecordingStore persists the ordered collection of encounters.
// Every call may fail; the engine treats failures inside tasks as task failures.
type RecordingStore interface {
	// List returns all encounters, including temporary drafts.
	List(ctx context.Context) ([]*model.Encounter, error)

	// Create stores a new encounter, assigns its ID, and returns the stored record.
	Create(ctx context.Context, e *model.Encounter) (*model.Encounter, error)

	// Update applies a partial change to the encounter with the given ID.
	// Returns ErrNotFound if no such encounter exists.
	Update(ctx context.Context, id string, patch model.EncounterPatch) error

	// GetByID returns the encounter, or nil if it does not exist.
	GetByID(ctx context.Context, id string) (*model.Encounter, error)
}

// TagStore persists predefined and custom tags.
type TagStore interface {
	// ListAll returns predefined and custom tags with soft-deletes applied.
	ListAll(ctx context.Context) ([]*model.Tag, error)

	// Create adds a custom tag. Returns nil and no error when the label
	// duplicates an existing tag (case-insensitive).
	Create(ctx context.Context, t model.NewTag) (*model.Tag, error)
}
