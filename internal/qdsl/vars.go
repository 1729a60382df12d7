package qdsl

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

var varRef = regexp.MustCompile(`\$\{\s*([^}]+?)\s*\}`)

// Bindings supplies values for ${name} references. Vars holds scalar
// substitutions; Objects holds typed values, usually collections, which
// expand element by element inside lists.
type Bindings struct {
	Vars    map[string]string
	Objects map[string]any
}

// Merge returns a copy of b with other's entries layered on top.
func (b Bindings) Merge(other Bindings) Bindings {
	out := Bindings{
		Vars:    make(map[string]string, len(b.Vars)+len(other.Vars)),
		Objects: make(map[string]any, len(b.Objects)+len(other.Objects)),
	}
	for k, v := range b.Vars {
		out.Vars[k] = v
	}
	for k, v := range other.Vars {
		out.Vars[k] = v
	}
	for k, v := range b.Objects {
		out.Objects[k] = v
	}
	for k, v := range other.Objects {
		out.Objects[k] = v
	}
	return out
}

func (b Bindings) scalar(name string) (string, bool) {
	if s, ok := b.Vars[name]; ok {
		return s, true
	}
	if v, ok := b.Objects[name]; ok && !isCollection(v) {
		s, err := cast.ToStringE(v)
		if err == nil {
			return s, true
		}
	}
	return "", false
}

// Interpolate replaces every ${name} in text with its scalar binding.
func (b Bindings) Interpolate(text string) (string, error) {
	var missing string
	out := varRef.ReplaceAllStringFunc(text, func(m string) string {
		name := varRef.FindStringSubmatch(m)[1]
		s, ok := b.scalar(name)
		if !ok && missing == "" {
			missing = name
		}
		return s
	})
	if missing != "" {
		return "", ErrUnresolvedVariable.New(missing)
	}
	return out, nil
}

// Resolve returns the value for a literal in a comparison. Variables are
// substituted and coerced; typed object bindings pass through unchanged.
func (b Bindings) Resolve(l Literal) (any, error) {
	switch l.Kind {
	case LitVariable:
		if v, ok := b.Objects[l.Text]; ok {
			if isCollection(v) {
				return nil, ErrInvalidLiteral.New("collection variable in scalar position", l.Text)
			}
			if s, isStr := v.(string); isStr {
				return Coerce(s), nil
			}
			return v, nil
		}
		s, ok := b.Vars[l.Text]
		if !ok {
			return nil, ErrUnresolvedVariable.New(l.Text)
		}
		return Coerce(s), nil
	case LitQuoted:
		if strings.Contains(l.Text, "${") {
			return b.Interpolate(l.Text)
		}
	}
	return l.Value()
}

// ResolveList returns the values of an IN list. A variable bound to a
// collection expands in place; a scalar variable is split on commas and
// each part coerced. keepString suppresses coercion of bare words, for
// fields known to hold strings. onEmpty, if set, is called for variables
// that expand to nothing.
func (b Bindings) ResolveList(items []Literal, keepString bool, onEmpty func(name string)) ([]any, error) {
	coerce := func(v any) any {
		if s, ok := v.(string); ok && keepString {
			return s
		}
		return Coerce(v)
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		switch {
		case item.Kind == LitVariable:
			if obj, ok := b.Objects[item.Text]; ok && isCollection(obj) {
				elems := elements(obj)
				if len(elems) == 0 && onEmpty != nil {
					onEmpty(item.Text)
				}
				for _, e := range elems {
					values = append(values, coerce(e))
				}
				continue
			}
			s, ok := b.scalar(item.Text)
			if !ok {
				return nil, ErrUnresolvedVariable.New(item.Text)
			}
			if strings.TrimSpace(s) == "" {
				if onEmpty != nil {
					onEmpty(item.Text)
				}
				continue
			}
			for _, part := range strings.Split(s, ",") {
				values = append(values, coerce(strings.TrimSpace(part)))
			}
		case item.Kind == LitQuoted && strings.Contains(item.Text, "${"):
			s, err := b.Interpolate(item.Text)
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		default:
			v, err := item.ListValue(keepString)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	// arrays are left out: primitive.ObjectID is a [12]byte
	if reflect.TypeOf(v).Kind() != reflect.Slice {
		return false
	}
	_, isBytes := v.([]byte)
	return !isBytes
}

func elements(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
