package schema

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrUnknownEntity is returned when a type name is not registered.
	ErrUnknownEntity = errors.NewKind("unknown entity type %q")

	// ErrInvalidDescriptor is returned when a descriptor fails validation on load.
	ErrInvalidDescriptor = errors.NewKind("invalid schema descriptor %s: %s")
)

// FieldKind is the declared type of a field.
type FieldKind string

const (
	KindString    FieldKind = "string"
	KindInt       FieldKind = "int"
	KindFloat     FieldKind = "float"
	KindBool      FieldKind = "bool"
	KindDate      FieldKind = "date"
	KindDateTime  FieldKind = "datetime"
	KindObjectID  FieldKind = "objectId"
	KindObject    FieldKind = "object"    // embedded entity named by Type
	KindArray     FieldKind = "array"     // elements described by Elem (and Type)
	KindMap       FieldKind = "map"       // free-form keys
	KindReference FieldKind = "reference" // EntityReference to Ref.Target
)

var knownKinds = map[FieldKind]bool{
	KindString: true, KindInt: true, KindFloat: true, KindBool: true,
	KindDate: true, KindDateTime: true, KindObjectID: true, KindObject: true,
	KindArray: true, KindMap: true, KindReference: true,
}

// Primitive reports kinds that have no nested fields.
func (k FieldKind) Primitive() bool {
	switch k {
	case KindObject, KindArray, KindMap, KindReference:
		return false
	}
	return true
}

// RefDef is relationship metadata for a reference field.
type RefDef struct {
	Target     string `yaml:"target" json:"target"`                             // entity type name
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"` // overrides the target's collection
}

type FieldDef struct {
	Name      string    `yaml:"name" json:"name"`
	StoredAs  string    `yaml:"storedAs,omitempty" json:"storedAs,omitempty"`
	Kind      FieldKind `yaml:"kind" json:"kind"`
	Elem      FieldKind `yaml:"elem,omitempty" json:"elem,omitempty"`
	Type      string    `yaml:"type,omitempty" json:"type,omitempty"`
	Ref       *RefDef   `yaml:"ref,omitempty" json:"ref,omitempty"`
	Transient bool      `yaml:"transient,omitempty" json:"transient,omitempty"`
	Static    bool      `yaml:"static,omitempty" json:"static,omitempty"`
}

// Key returns the name the field is stored and queried under.
func (f *FieldDef) Key() string {
	if f.StoredAs != "" {
		return f.StoredAs
	}
	return f.Name
}

// ValueKind is the kind of a single value: the element kind for arrays.
func (f *FieldDef) ValueKind() FieldKind {
	if f.Kind == KindArray {
		return f.Elem
	}
	return f.Kind
}

// IsNumeric returns true if the field holds numbers.
func (f *FieldDef) IsNumeric() bool {
	k := f.ValueKind()
	return k == KindInt || k == KindFloat
}

// IsArray reports a collection-valued field.
func (f *FieldDef) IsArray() bool {
	return f.Kind == KindArray
}

// IsReference reports a single reference or a collection of references.
func (f *FieldDef) IsReference() bool {
	return f.ValueKind() == KindReference
}

// NestedType returns the entity type describing nested values, or "".
func (f *FieldDef) NestedType() string {
	switch f.ValueKind() {
	case KindReference:
		return EntityReferenceType
	case KindObject:
		return f.Type
	}
	return ""
}

// Skipped reports fields that are never persisted.
func (f *FieldDef) Skipped() bool {
	return f.Transient || f.Static
}

type EntityDef struct {
	Name        string     `yaml:"name" json:"name"`
	Collection  string     `yaml:"collection,omitempty" json:"collection,omitempty"`
	Extends     string     `yaml:"extends,omitempty" json:"extends,omitempty"`
	Embedded    bool       `yaml:"embedded,omitempty" json:"embedded,omitempty"`
	TenantField string     `yaml:"tenantField,omitempty" json:"tenantField,omitempty"`
	IDField     string     `yaml:"idField,omitempty" json:"idField,omitempty"`
	Fields      []FieldDef `yaml:"fields" json:"fields"`

	FieldsByKey map[string]*FieldDef `yaml:"-" json:"-"`
}

// CollectionName is the store collection for the entity.
func (e *EntityDef) CollectionName() string {
	if e.Collection != "" {
		return e.Collection
	}
	return e.Name
}

func (e *EntityDef) index() {
	e.FieldsByKey = make(map[string]*FieldDef, len(e.Fields))
	for i := range e.Fields {
		e.FieldsByKey[e.Fields[i].Key()] = &e.Fields[i]
	}
}
