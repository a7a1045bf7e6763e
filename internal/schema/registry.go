package schema

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// snapshot is an immutable view of every registered schema. Readers
// load the current snapshot atomically and never take a lock, so an
// in-flight decode sees one consistent schema for its entire file.
type snapshot struct {
	byID map[uuid.UUID]*Schema
	// byFileType holds every version for a file type, active or not.
	byFileType map[string][]*Schema
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byID:       map[uuid.UUID]*Schema{},
		byFileType: map[string][]*Schema{},
	}
}

// clone copies the snapshot maps so a writer can mutate its own copy
// before publishing.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		byID:       make(map[uuid.UUID]*Schema, len(s.byID)+1),
		byFileType: make(map[string][]*Schema, len(s.byFileType)+1),
	}
	for id, sc := range s.byID {
		next.byID[id] = sc
	}
	for ft, list := range s.byFileType {
		cp := make([]*Schema, len(list))
		copy(cp, list)
		next.byFileType[ft] = cp
	}
	return next
}

// Registry resolves file types to schemas. Reads are lock-free;
// writers serialize on a mutex and publish whole snapshots.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot())
	return r
}

// Register validates and adds a schema, returning its ID. The schema is
// stored as the newest version for its file type and becomes the active
// resolution target if marked active. Registration never mutates an
// existing version; new fields require a new version.
func (r *Registry) Register(s Schema) (uuid.UUID, error) {
	if err := Validate(&s); err != nil {
		return uuid.Nil, err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	for _, existing := range cur.byFileType[s.FileType] {
		if existing.Version == s.Version {
			return uuid.Nil, &ValidationError{
				Schema:  s.Name,
				Message: "version already registered for file type " + s.FileType,
			}
		}
	}

	next := cur.clone()
	stored := s
	next.byID[stored.ID] = &stored
	next.byFileType[stored.FileType] = append(next.byFileType[stored.FileType], &stored)
	r.current.Store(next)
	return stored.ID, nil
}

// Resolve returns the schema for a file type. Version 0 resolves the
// latest active version; a specific version resolves regardless of the
// active flag so historical files can be re-read.
func (r *Registry) Resolve(fileType string, version int) (*Schema, error) {
	cur := r.current.Load()
	var best *Schema
	for _, s := range cur.byFileType[fileType] {
		if version > 0 {
			if s.Version == version {
				return s, nil
			}
			continue
		}
		if !s.IsActive {
			continue
		}
		if best == nil || s.Version > best.Version {
			best = s
		}
	}
	if best == nil {
		return nil, &ErrSchemaNotFound{FileType: fileType, Version: version}
	}
	return best, nil
}

// Get returns a schema by ID.
func (r *Registry) Get(id uuid.UUID) (*Schema, bool) {
	s, ok := r.current.Load().byID[id]
	return s, ok
}

// List returns every registered schema.
func (r *Registry) List() []*Schema {
	cur := r.current.Load()
	out := make([]*Schema, 0, len(cur.byID))
	for _, s := range cur.byID {
		out = append(out, s)
	}
	return out
}

// Deactivate clears the active flag so the schema no longer resolves
// as latest. Files decoded against it by explicit version are
// unaffected.
func (r *Registry) Deactivate(id uuid.UUID) error {
	return r.setActive(id, false)
}

// Activate sets the active flag on an existing schema version.
func (r *Registry) Activate(id uuid.UUID) error {
	return r.setActive(id, true)
}

func (r *Registry) setActive(id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	old, ok := cur.byID[id]
	if !ok {
		return fmt.Errorf("schema %s is not registered", id)
	}

	next := cur.clone()
	updated := *old
	updated.IsActive = active
	next.byID[id] = &updated
	list := next.byFileType[updated.FileType]
	for i, s := range list {
		if s.ID == id {
			list[i] = &updated
		}
	}
	r.current.Store(next)
	return nil
}
