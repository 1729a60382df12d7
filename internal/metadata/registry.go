// Package metadata resolves relationship paths on entity types into join
// descriptors and checks projection paths.
package metadata

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/e2eq/querycore/internal/plan"
	"github.com/e2eq/querycore/internal/schema"
)

const arrayHop = "[*]"

var (
	// ErrUnresolvedJoin is returned for a path that is not a resolvable reference.
	ErrUnresolvedJoin = errors.NewKind("cannot resolve join %q on %s: %s")

	// ErrUnknownProjection is returned for a projected path the entity does not have.
	ErrUnknownProjection = errors.NewKind("unknown projection field %q on %s")
)

// IsMetadataError reports whether err is a query metadata error.
func IsMetadataError(err error) bool {
	return errors.Any(err, ErrUnresolvedJoin, ErrUnknownProjection)
}

// Registry resolves joins against a schema registry and caches the
// results per (type, path). The cache is safe for concurrent use and is
// dropped whenever the schema registry is reloaded.
type Registry struct {
	schemas    *schema.Registry
	log        logrus.FieldLogger
	generation atomic.Uint64
	joins      sync.Map // joinKey -> *joinEntry
}

type joinKey struct {
	generation uint64
	entity     string
	path       string
}

// joinEntry computes its spec once, however many callers race on it.
type joinEntry struct {
	once sync.Once
	spec *plan.JoinSpec
	err  error
}

func New(schemas *schema.Registry, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.WithField("component", "metadata")
	}
	return &Registry{schemas: schemas, log: log}
}

// Schemas returns the underlying schema registry.
func (r *Registry) Schemas() *schema.Registry {
	return r.schemas
}

// ResolveJoin returns the join descriptor for a reference path such as
// customer or items[*].product. The returned spec is a copy.
func (r *Registry) ResolveJoin(entity, path string) (*plan.JoinSpec, error) {
	gen := r.schemas.Generation()
	r.advance(gen)

	v, _ := r.joins.LoadOrStore(joinKey{generation: gen, entity: entity, path: path}, &joinEntry{})
	e := v.(*joinEntry)
	e.once.Do(func() {
		e.spec, e.err = r.resolve(entity, path)
		if e.err == nil {
			r.log.WithFields(logrus.Fields{
				"entity": entity,
				"path":   path,
				"from":   e.spec.FromCollection,
			}).Debug("resolved join")
		}
	})
	if e.err != nil {
		return nil, e.err
	}
	spec := *e.spec
	return &spec, nil
}

// advance moves the cache to a newer schema generation, dropping entries
// of older ones. Callers still holding an older generation never move it
// back. It reports whether the cache was cleared.
func (r *Registry) advance(gen uint64) bool {
	for {
		cur := r.generation.Load()
		if gen <= cur {
			return false
		}
		if r.generation.CompareAndSwap(cur, gen) {
			r.joins.Clear()
			return true
		}
	}
}

func (r *Registry) resolve(entity, path string) (*plan.JoinSpec, error) {
	fail := func(format string, args ...any) error {
		return ErrUnresolvedJoin.New(path, entity, fmt.Sprintf(format, args...))
	}
	if path == "" {
		return nil, fail("empty path")
	}
	if r.schemas.Get(entity) == nil {
		return nil, fail("unknown entity type")
	}

	segments := strings.Split(path, ".")
	normalized := make([]string, len(segments))
	current := entity
	hops := 0
	var field *schema.FieldDef

	for i, seg := range segments {
		name, hop := strings.CutSuffix(seg, arrayHop)
		f, err := r.schemas.Field(current, name)
		if err != nil {
			return nil, fail("%v", err)
		}
		if f == nil {
			return nil, fail("field %q not found on %s", name, current)
		}
		if hop && !f.IsArray() {
			return nil, fail("%q is not an array, [*] not allowed", name)
		}
		last := i == len(segments)-1
		if f.IsArray() {
			if !hop && !last {
				return nil, fail("array field %q must be marked with [*]", name)
			}
			hops++
			hop = true
		}
		normalized[i] = name
		if hop {
			normalized[i] += arrayHop
		}

		if last {
			field = f
			break
		}
		switch {
		case f.IsReference():
			return nil, fail("%q is a reference; only single-hop joins are supported", name)
		case f.ValueKind() == schema.KindObject:
			current = f.Type
		default:
			return nil, fail("%q has no nested fields", name)
		}
	}

	if !field.IsReference() {
		return nil, fail("field %q is not a reference", field.Name)
	}
	if hops > 1 {
		return nil, fail("only one array hop is supported")
	}

	from := field.Ref.Collection
	remote := "_id"
	if target := r.schemas.Get(field.Ref.Target); target != nil {
		if from == "" {
			from = target.CollectionName()
		}
		remote = r.schemas.IDField(target.Name)
	}
	if from == "" {
		return nil, fail("reference target %q is not registered and declares no collection", field.Ref.Target)
	}

	return &plan.JoinSpec{
		FromCollection: from,
		LocalIDExpr:    strings.Join(normalized, ".") + ".entityId",
		RemoteIDField:  remote,
		TenantField:    r.schemas.TenantField(entity),
		LocalIsArray:   hops > 0,
	}, nil
}

// ValidateProjection checks every projected path against the entity's
// fields. _id is always accepted.
func (r *Registry) ValidateProjection(entity string, p *plan.Projection) error {
	if p == nil {
		return nil
	}
	v, err := schema.ForType(r.schemas, entity)
	if err != nil {
		return err
	}
	for _, path := range p.Paths() {
		if path == "_id" {
			continue
		}
		if !v.Validate(path) {
			return ErrUnknownProjection.New(path, entity)
		}
	}
	return nil
}
