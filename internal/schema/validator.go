package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/e2eq/querycore/internal/qdsl"
)

// FieldValidationError carries every field problem found in one query.
type FieldValidationError struct {
	Entity string
	Errors []string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("invalid fields for %s: %s", e.Entity, strings.Join(e.Errors, "; "))
}

// Validator checks dotted field paths against the field set of an entity.
// Errors accumulate until cleared, so one pass reports every bad field.
// A Validator is not safe for concurrent use.
type Validator struct {
	entity string
	fields map[string]*FieldDef // nil values for paths given without a type
	errors []string
}

// ForType flattens the fields of entity, its embedded types and its
// supertypes into dotted paths. Static and transient fields are skipped.
func ForType(r *Registry, entity string) (*Validator, error) {
	v := &Validator{entity: entity, fields: make(map[string]*FieldDef)}
	if err := v.collect(r, entity, "", map[string]bool{}); err != nil {
		return nil, err
	}
	return v, nil
}

// ForFields builds a validator from an explicit path set.
func ForFields(paths ...string) *Validator {
	v := &Validator{entity: "fields", fields: make(map[string]*FieldDef, len(paths))}
	for _, p := range paths {
		v.fields[p] = nil
	}
	return v
}

func (v *Validator) collect(r *Registry, entity, prefix string, visiting map[string]bool) error {
	if visiting[entity] {
		return nil // recursive type: stop at the first repeat
	}
	visiting[entity] = true
	defer delete(visiting, entity)

	lineage, err := r.Lineage(entity)
	if err != nil {
		return err
	}
	for _, def := range lineage {
		for i := range def.Fields {
			f := &def.Fields[i]
			if f.Skipped() {
				continue
			}
			path := prefix + f.Key()
			if _, seen := v.fields[path]; seen {
				continue // overridden by a subtype
			}
			v.fields[path] = f
			if nested := f.NestedType(); nested != "" {
				if err := v.collect(r, nested, path+".", visiting); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Validate reports whether path, or any prefix of it, is a known field.
func (v *Validator) Validate(path string) bool {
	if path == "" {
		v.errors = append(v.errors, "Empty field path")
		return false
	}
	if v.known(path) {
		return true
	}
	v.errors = append(v.errors, "Field not found: "+path)
	return false
}

func (v *Validator) known(path string) bool {
	if _, ok := v.fields[path]; ok {
		return true
	}
	for i := strings.LastIndexByte(path, '.'); i > 0; i = strings.LastIndexByte(path[:i], '.') {
		if _, ok := v.fields[path[:i]]; ok {
			return true
		}
	}
	return false
}

// ValidateQuery checks every field a query filters on. Syntax errors are
// returned as is; unknown fields accumulate and the result is false.
func (v *Validator) ValidateQuery(query string) (bool, error) {
	root, err := qdsl.Parse(query)
	if err != nil {
		return false, err
	}
	return v.ValidateNode(root), nil
}

// ValidateNode checks the fields of a parsed query.
func (v *Validator) ValidateNode(root qdsl.Node) bool {
	ok := true
	for _, ref := range qdsl.FieldRefs(root) {
		if !v.Validate(ref.Path) {
			ok = false
		}
	}
	return ok
}

// Errors returns the accumulated messages.
func (v *Validator) Errors() []string {
	return append([]string(nil), v.errors...)
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) ClearErrors() {
	v.errors = nil
}

// Err returns the accumulated messages as a FieldValidationError, or nil.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &FieldValidationError{Entity: v.entity, Errors: v.Errors()}
}

// FieldKind returns the declared kind of an exact path.
func (v *Validator) FieldKind(path string) (FieldKind, bool) {
	f, ok := v.fields[path]
	if !ok || f == nil {
		return "", false
	}
	return f.Kind, true
}

// FieldClass implements qdsl.FieldTypes.
func (v *Validator) FieldClass(path string) (qdsl.FieldClass, bool) {
	f, ok := v.fields[path]
	if !ok || f == nil {
		return qdsl.ClassOther, false
	}
	switch f.ValueKind() {
	case KindInt, KindFloat:
		return qdsl.ClassNumeric, true
	case KindString:
		return qdsl.ClassString, true
	}
	return qdsl.ClassOther, true
}

// Paths returns every known path in sorted order.
func (v *Validator) Paths() []string {
	out := make([]string, 0, len(v.fields))
	for p := range v.fields {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
