// Package store is an in-memory document store that evaluates FILTER
// plans with compiled predicates.
package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/e2eq/querycore/internal/plan"
	"github.com/e2eq/querycore/internal/qdsl/predicate"
)

// Document is a stored record.
type Document = map[string]any

// Memory holds documents per collection. It does not run pipelines.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Document)}
}

// Insert appends documents to a collection.
func (m *Memory) Insert(collection string, docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], docs...)
}

// LoadFile reads a YAML or JSON file mapping collection names to lists
// of documents.
func (m *Memory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed data: %w", err)
	}
	var seed map[string][]Document
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode seed data %s: %w", path, err)
	}
	for coll, docs := range seed {
		m.Insert(coll, docs...)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Find returns the matching documents of a collection, sorted, paged and
// projected. Sorting sees the full documents.
func (m *Memory) Find(ctx context.Context, collection string, match predicate.Predicate, order plan.Sort, page *plan.Page, proj *plan.Projection) ([]Document, error) {
	m.mu.RLock()
	docs := m.collections[collection]
	var out []Document
	for i, doc := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				m.mu.RUnlock()
				return nil, err
			}
		}
		if match(doc) {
			out = append(out, doc)
		}
	}
	m.mu.RUnlock()

	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range order {
				a, _ := predicate.Value(out[i], s.Field)
				b, _ := predicate.Value(out[j], s.Field)
				c := predicate.Compare(a, b)
				if c == 0 {
					continue
				}
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if page != nil {
		if page.Skip > 0 {
			if page.Skip >= len(out) {
				return []Document{}, nil
			}
			out = out[page.Skip:]
		}
		if page.Limit > 0 && page.Limit < len(out) {
			out = out[:page.Limit]
		}
	}
	if out == nil {
		return []Document{}, nil
	}
	if proj != nil {
		projected := make([]Document, len(out))
		for i, doc := range out {
			projected[i] = Project(doc, proj)
		}
		out = projected
	}
	return out, nil
}
