package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds entity descriptors. Loads replace the whole set at once
// and bump the generation, so derived caches can tell they are stale.
type Registry struct {
	mu         sync.RWMutex
	entities   map[string]*EntityDef
	generation uint64
}

// NewRegistry returns a registry holding only the built-in types.
func NewRegistry() *Registry {
	r := &Registry{}
	if err := r.Replace(nil); err != nil {
		panic(fmt.Sprintf("schema: built-in types are invalid: %v", err))
	}
	return r
}

// Replace validates defs together with the built-ins and swaps them in.
func (r *Registry) Replace(defs []*EntityDef) error {
	entities := make(map[string]*EntityDef, len(defs)+3)
	for _, def := range append(builtins(), defs...) {
		if def.Name == "" {
			return ErrInvalidDescriptor.New("<unnamed>", "entity name is required")
		}
		if _, dup := entities[def.Name]; dup {
			return ErrInvalidDescriptor.New(def.Name, "duplicate entity name")
		}
		def.index()
		entities[def.Name] = def
	}
	for _, def := range entities {
		if err := checkEntity(def, entities); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.entities = entities
	r.generation++
	r.mu.Unlock()
	return nil
}

func checkEntity(def *EntityDef, entities map[string]*EntityDef) error {
	if def.Extends != "" {
		if _, ok := entities[def.Extends]; !ok {
			return ErrInvalidDescriptor.New(def.Name, fmt.Sprintf("extends unknown type %q", def.Extends))
		}
		seen := map[string]bool{def.Name: true}
		for cur := entities[def.Extends]; cur != nil; cur = entities[cur.Extends] {
			if seen[cur.Name] {
				return ErrInvalidDescriptor.New(def.Name, "inheritance cycle")
			}
			seen[cur.Name] = true
		}
	}
	for i := range def.Fields {
		f := &def.Fields[i]
		where := def.Name + "." + f.Name
		if f.Name == "" {
			return ErrInvalidDescriptor.New(def.Name, "field name is required")
		}
		if !knownKinds[f.Kind] {
			return ErrInvalidDescriptor.New(where, fmt.Sprintf("unknown kind %q", f.Kind))
		}
		if f.Kind == KindArray && (!knownKinds[f.Elem] || f.Elem == KindArray) {
			return ErrInvalidDescriptor.New(where, fmt.Sprintf("array needs a scalar, object or reference elem, got %q", f.Elem))
		}
		switch f.ValueKind() {
		case KindObject:
			if _, ok := entities[f.Type]; !ok {
				return ErrInvalidDescriptor.New(where, fmt.Sprintf("unknown embedded type %q", f.Type))
			}
		case KindReference:
			if f.Ref == nil || (f.Ref.Target == "" && f.Ref.Collection == "") {
				return ErrInvalidDescriptor.New(where, "reference needs ref.target or ref.collection")
			}
		}
	}
	return nil
}

// Get returns the named entity, or nil.
func (r *Registry) Get(name string) *EntityDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// Generation increases on every successful Replace.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// RootTypes returns the sorted names of queryable (non-embedded) entities.
func (r *Registry) RootTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, def := range r.entities {
		if !def.Embedded {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// EntityCount returns the number of loaded entities, built-ins included.
func (r *Registry) EntityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Lineage returns the entity followed by its supertypes.
func (r *Registry) Lineage(name string) ([]*EntityDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entities[name]
	if !ok {
		return nil, ErrUnknownEntity.New(name)
	}
	var out []*EntityDef
	for cur := def; cur != nil; cur = r.entities[cur.Extends] {
		out = append(out, cur)
		if cur.Extends == "" {
			break
		}
	}
	return out, nil
}

// Field finds a field by stored key on the entity or its supertypes.
func (r *Registry) Field(entity, key string) (*FieldDef, error) {
	lineage, err := r.Lineage(entity)
	if err != nil {
		return nil, err
	}
	for _, def := range lineage {
		if f, ok := def.FieldsByKey[key]; ok && !f.Skipped() {
			return f, nil
		}
	}
	return nil, nil
}

// TenantField returns the tenant-scoping path declared by the entity or
// its nearest supertype, or "".
func (r *Registry) TenantField(entity string) string {
	lineage, err := r.Lineage(entity)
	if err != nil {
		return ""
	}
	for _, def := range lineage {
		if def.TenantField != "" {
			return def.TenantField
		}
	}
	return ""
}

// IDField returns the identifier field of the entity, "_id" by default.
func (r *Registry) IDField(entity string) string {
	lineage, err := r.Lineage(entity)
	if err != nil {
		return "_id"
	}
	for _, def := range lineage {
		if def.IDField != "" {
			return def.IDField
		}
	}
	return "_id"
}
