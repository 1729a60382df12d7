package predicate

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// lookup returns the values found at a dotted path. Arrays met before the
// last segment are flattened, so items.sku over [{sku:a},{sku:b}] yields
// both skus. A missing path yields no values; an explicit null yields nil.
func lookup(doc any, path string) []any {
	if path == "" {
		return []any{doc}
	}
	return walk(doc, strings.Split(path, "."))
}

func walk(node any, parts []string) []any {
	if len(parts) == 0 {
		return []any{node}
	}
	if child, ok := field(node, parts[0]); ok {
		return walk(child, parts[1:])
	}
	if elems, ok := list(node); ok {
		var out []any
		for _, el := range elems {
			out = append(out, walk(el, parts)...)
		}
		return out
	}
	return nil
}

// field reads key from a map-like node.
func field(node any, key string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		return v, ok
	case bson.M:
		v, ok := n[key]
		return v, ok
	case bson.D:
		for _, e := range n {
			if e.Key == key {
				return e.Value, true
			}
		}
		return nil, false
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(node)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}

// list returns the elements of an array-like node.
func list(node any) ([]any, bool) {
	switch n := node.(type) {
	case []any:
		return n, true
	case bson.A:
		return n, true
	case []byte, string, nil, bson.D:
		return nil, false
	}
	rv := reflect.ValueOf(node)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// candidates expands array values so comparisons see each element.
func candidates(values []any) []any {
	var out []any
	for _, v := range values {
		if elems, ok := list(v); ok {
			out = append(out, elems...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// stringLeaves collects every string leaf of a document, for text search.
func stringLeaves(node any, out []string) []string {
	switch n := node.(type) {
	case string:
		return append(out, n)
	case bson.D:
		for _, e := range n {
			out = stringLeaves(e.Value, out)
		}
		return out
	}
	if elems, ok := list(node); ok {
		for _, el := range elems {
			out = stringLeaves(el, out)
		}
		return out
	}
	rv := reflect.ValueOf(node)
	if rv.Kind() == reflect.Map {
		iter := rv.MapRange()
		for iter.Next() {
			out = stringLeaves(iter.Value().Interface(), out)
		}
	}
	return out
}
