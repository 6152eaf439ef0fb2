package testutil

import (
	"context"
	"fmt"
	"sync"

	"vj-go/internal/model"
	"vj-go/internal/vj"
)

// MemoryRecordingStore is an in-memory vj.RecordingStore with failure injection.
// Safe for concurrent use.
type MemoryRecordingStore struct {
	mu      sync.Mutex
	ids     vj.IDGenerator
	order   []string
	records map[string]*model.Encounter

	// ListErr, CreateErr fail every call when set.
	ListErr   error
	CreateErr error
	// UpdateErrs fails updates of specific encounter IDs.
	UpdateErrs map[string]error

	creates int
	updates int
}

// NewMemoryRecordingStore creates a store seeded with encounters, which are cloned.
func NewMemoryRecordingStore(seed ...*model.Encounter) *MemoryRecordingStore {
	s := &MemoryRecordingStore{
		ids:        NewStubIDGenerator("rec"),
		records:    make(map[string]*model.Encounter),
		UpdateErrs: make(map[string]error),
	}
	for _, e := range seed {
		s.order = append(s.order, e.ID)
		s.records[e.ID] = e.Clone()
	}
	return s
}

func (s *MemoryRecordingStore) List(ctx context.Context) ([]*model.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]*model.Encounter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}

func (s *MemoryRecordingStore) Create(ctx context.Context, e *model.Encounter) (*model.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	rec := e.Clone()
	if rec.ID == "" {
		rec.ID = "enc-" + s.ids.New()
	}
	if _, dup := s.records[rec.ID]; dup {
		return nil, fmt.Errorf("encounter %s already exists", rec.ID)
	}
	s.order = append(s.order, rec.ID)
	s.records[rec.ID] = rec
	s.creates++
	return rec.Clone(), nil
}

func (s *MemoryRecordingStore) Update(ctx context.Context, id string, patch model.EncounterPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.UpdateErrs[id]; err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("encounter %s: %w", id, vj.ErrNotFound)
	}
	patch.Apply(rec)
	s.updates++
	return nil
}

func (s *MemoryRecordingStore) GetByID(ctx context.Context, id string) (*model.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Get returns a copy of the encounter, or nil. For assertions.
func (s *MemoryRecordingStore) Get(id string) *model.Encounter {
	e, _ := s.GetByID(context.Background(), id)
	return e
}

// All returns copies of every encounter in insertion order.
func (s *MemoryRecordingStore) All() []*model.Encounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Encounter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Creates returns how many encounters were created through Create.
func (s *MemoryRecordingStore) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Updates returns how many successful Update calls were made.
func (s *MemoryRecordingStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// MemoryTagStore is an in-memory vj.TagStore. Safe for concurrent use.
type MemoryTagStore struct {
	mu   sync.Mutex
	ids  vj.IDGenerator
	tags []*model.Tag

	// ListErr fails ListAll, CreateErr fails Create when set.
	ListErr   error
	CreateErr error

	listCalls   int
	createCalls int
}

// NewMemoryTagStore creates a store seeded with tags, which are copied.
func NewMemoryTagStore(seed ...model.Tag) *MemoryTagStore {
	s := &MemoryTagStore{ids: NewStubIDGenerator("custom")}
	for _, t := range seed {
		t := t
		s.tags = append(s.tags, &t)
	}
	return s
}

func (s *MemoryTagStore) ListAll(ctx context.Context) ([]*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]*model.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryTagStore) Create(ctx context.Context, nt model.NewTag) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	key := vj.NormalizeLabel(nt.Label)
	for _, t := range s.tags {
		if vj.NormalizeLabel(t.Label) == key {
			return nil, nil
		}
	}
	t := &model.Tag{
		ID:         "tag-" + s.ids.New(),
		Label:      nt.Label,
		Icon:       nt.Icon,
		IconFamily: nt.IconFamily,
		Color:      nt.Color,
		IsCustom:   true,
	}
	s.tags = append(s.tags, t)
	c := *t
	return &c, nil
}

// ListCalls returns how many times ListAll was called.
func (s *MemoryTagStore) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// CreateCalls returns how many times Create was called.
func (s *MemoryTagStore) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

var (
	_ vj.RecordingStore = (*MemoryRecordingStore)(nil)
	_ vj.TagStore       = (*MemoryTagStore)(nil)
)
