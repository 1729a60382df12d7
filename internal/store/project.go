package store

import (
	"maps"
	"strings"

	"github.com/e2eq/querycore/internal/plan"
)

// Project returns doc shaped by p, matching the $project stages the
// aggregation compiler emits: include mode keeps the listed paths plus
// _id unless _id is excluded, then drops excluded paths nested under
// included ones; exclude mode drops the listed paths. doc is not modified.
func Project(doc Document, p *plan.Projection) Document {
	if p == nil || (len(p.Include) == 0 && len(p.Exclude) == 0) {
		return doc
	}
	if !p.IncludeMode {
		out := doc
		for _, path := range p.Exclude {
			out = without(out, strings.Split(path, "."))
		}
		return out
	}

	out := make(Document)
	keepID := true
	for _, path := range p.Include {
		include(out, doc, strings.Split(path, "."))
	}
	for _, path := range p.Exclude {
		if path == "_id" {
			keepID = false
			continue
		}
		out = without(out, strings.Split(path, "."))
	}
	if id, ok := doc["_id"]; ok {
		if keepID {
			out["_id"] = id
		} else {
			delete(out, "_id")
		}
	}
	return out
}

// include copies the value at parts from src into dst. Arrays of
// embedded documents are projected element by element; other elements
// are dropped.
func include(dst, src map[string]any, parts []string) {
	v, ok := src[parts[0]]
	if !ok {
		return
	}
	if len(parts) == 1 {
		dst[parts[0]] = v
		return
	}
	switch child := v.(type) {
	case map[string]any:
		sub, _ := dst[parts[0]].(map[string]any)
		if sub == nil {
			sub = make(map[string]any)
			dst[parts[0]] = sub
		}
		include(sub, child, parts[1:])
	case []any:
		var elems []map[string]any
		for _, el := range child {
			if m, ok := el.(map[string]any); ok {
				elems = append(elems, m)
			}
		}
		out, _ := dst[parts[0]].([]any)
		if out == nil {
			out = make([]any, len(elems))
			for i := range out {
				out[i] = make(map[string]any)
			}
			dst[parts[0]] = out
		}
		for i, m := range elems {
			include(out[i].(map[string]any), m, parts[1:])
		}
	}
}

// without returns m minus the value at parts, copying only the maps and
// slices along the path.
func without(m map[string]any, parts []string) map[string]any {
	v, ok := m[parts[0]]
	if !ok {
		return m
	}
	out := maps.Clone(m)
	if len(parts) == 1 {
		delete(out, parts[0])
		return out
	}
	switch child := v.(type) {
	case map[string]any:
		out[parts[0]] = without(child, parts[1:])
	case []any:
		elems := make([]any, len(child))
		for i, el := range child {
			if em, ok := el.(map[string]any); ok {
				el = without(em, parts[1:])
			}
			elems[i] = el
		}
		out[parts[0]] = elems
	}
	return out
}
