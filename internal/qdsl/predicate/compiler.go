// Package predicate compiles queries into in-memory document predicates.
package predicate

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/e2eq/querycore/internal/qdsl"
)

// Predicate reports whether a document matches. Documents are generic
// trees of maps, slices and scalars (JSON or BSON decoded).
type Predicate func(doc any) bool

// Compiler turns a parsed query into a Predicate.
type Compiler struct {
	bindings qdsl.Bindings
	types    qdsl.FieldTypes
	log      logrus.FieldLogger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithBindings sets the values used for ${name} references.
func WithBindings(b qdsl.Bindings) Option {
	return func(c *Compiler) { c.bindings = b }
}

// WithFieldTypes enables compile-time type checks and string-preserving
// list coercion against declared field types.
func WithFieldTypes(t qdsl.FieldTypes) Option {
	return func(c *Compiler) { c.types = t }
}

// WithLogger sets the logger used for compile warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Compiler) { c.log = l }
}

func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{log: logrus.WithField("component", "predicate")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile parses query with scalar and collection bindings and returns its predicate.
func Compile(query string, vars map[string]string, objectVars map[string]any) (Predicate, error) {
	c := NewCompiler(WithBindings(qdsl.Bindings{Vars: vars, Objects: objectVars}))
	return c.Compile(query)
}

// Compile parses and compiles a query string.
func (c *Compiler) Compile(query string) (Predicate, error) {
	root, err := qdsl.Parse(query)
	if err != nil {
		return nil, err
	}
	return c.CompileNode(root)
}

// CompileNode compiles an already parsed query.
func (c *Compiler) CompileNode(root qdsl.Node) (Predicate, error) {
	if err := qdsl.CheckTypes(root, c.types); err != nil {
		return nil, err
	}
	return c.compileNode(root, "")
}

// prefix carries the enclosing element-match path, for type lookups only.
func (c *Compiler) compileNode(node qdsl.Node, prefix string) (Predicate, error) {
	switch n := node.(type) {
	case *qdsl.BinaryOp:
		return c.compileBinary(n, prefix)
	case *qdsl.NotExpr:
		inner, err := c.compileNode(n.Expr, prefix)
		if err != nil {
			return nil, err
		}
		return func(doc any) bool { return !inner(doc) }, nil
	case *qdsl.Comparison:
		return c.compileComparison(n)
	case *qdsl.InExpr:
		return c.compileIn(n, prefix)
	case *qdsl.ElemMatch:
		return c.compileElemMatch(n, prefix)
	case *qdsl.ExistsExpr:
		field := n.Field
		return func(doc any) bool { return present(lookup(doc, field)) }, nil
	case *qdsl.TextExpr:
		return compileText(n), nil
	case *qdsl.ExpandExpr, *qdsl.FieldsExpr:
		return matchAll, nil
	default:
		return nil, qdsl.ErrUnsupportedNode.New(node)
	}
}

func matchAll(any) bool { return true }

func (c *Compiler) compileBinary(op *qdsl.BinaryOp, prefix string) (Predicate, error) {
	left, err := c.compileNode(op.Left, prefix)
	if err != nil {
		return nil, err
	}
	right, err := c.compileNode(op.Right, prefix)
	if err != nil {
		return nil, err
	}
	if op.Op == "||" {
		return func(doc any) bool { return left(doc) || right(doc) }, nil
	}
	return func(doc any) bool { return left(doc) && right(doc) }, nil
}

func (c *Compiler) compileComparison(cmp *qdsl.Comparison) (Predicate, error) {
	field := cmp.Field
	var p Predicate

	switch cmp.Value.Kind {
	case qdsl.LitNull:
		// null matches an explicit null or a missing field
		p = func(doc any) bool { return !present(lookup(doc, field)) }
	case qdsl.LitBool:
		want := strings.EqualFold(cmp.Value.Text, "true")
		p = func(doc any) bool {
			for _, v := range candidates(lookup(doc, field)) {
				if b, ok := asBoolean(v); ok && b == want {
					return true
				}
			}
			return false
		}
	case qdsl.LitWildcard:
		re, err := regexp.Compile(qdsl.WildcardPattern(cmp.Value.Text))
		if err != nil {
			return nil, qdsl.ErrInvalidLiteral.New(cmp.Value.Kind, cmp.Value.Text)
		}
		p = func(doc any) bool {
			for _, v := range candidates(lookup(doc, field)) {
				if s, ok := v.(string); ok && re.MatchString(s) {
					return true
				}
			}
			return false
		}
	default:
		want, err := c.bindings.Resolve(cmp.Value)
		if err != nil {
			return nil, err
		}
		op := cmp.Op
		if op.Relational() {
			return func(doc any) bool {
				for _, v := range candidates(lookup(doc, field)) {
					if order, ok := compareValues(v, want); ok && holds(op, order) {
						return true
					}
				}
				return false
			}, nil
		}
		p = func(doc any) bool {
			for _, v := range candidates(lookup(doc, field)) {
				if order, ok := compareValues(v, want); ok && order == 0 {
					return true
				}
			}
			return false
		}
	}

	if cmp.Op == qdsl.OpNeq {
		eq := p
		return func(doc any) bool { return !eq(doc) }, nil
	}
	return p, nil
}

func holds(op qdsl.CompareOp, order int) bool {
	switch op {
	case qdsl.OpGt:
		return order > 0
	case qdsl.OpGte:
		return order >= 0
	case qdsl.OpLt:
		return order < 0
	case qdsl.OpLte:
		return order <= 0
	}
	return false
}

func (c *Compiler) compileIn(in *qdsl.InExpr, prefix string) (Predicate, error) {
	keep := qdsl.KeepsStrings(c.types, prefix+in.Field)
	set, err := c.bindings.ResolveList(in.Items, keep, func(name string) {
		c.log.WithField("field", in.Field).Warnf("variable ${%s} expanded to an empty list; membership never matches", name)
	})
	if err != nil {
		return nil, err
	}

	field := in.Field
	member := func(doc any) bool {
		for _, v := range candidates(lookup(doc, field)) {
			for _, want := range set {
				if order, ok := compareValues(v, want); ok && order == 0 {
					return true
				}
			}
		}
		return false
	}
	if in.Negate {
		return func(doc any) bool { return !member(doc) }, nil
	}
	return member, nil
}

func (c *Compiler) compileElemMatch(em *qdsl.ElemMatch, prefix string) (Predicate, error) {
	inner, err := c.compileNode(em.Cond, prefix+em.Field+".")
	if err != nil {
		return nil, err
	}
	field := em.Field
	return func(doc any) bool {
		for _, v := range lookup(doc, field) {
			elems, ok := list(v)
			if !ok {
				continue
			}
			for _, el := range elems {
				if inner(el) {
					return true
				}
			}
		}
		return false
	}, nil
}

// compileText matches when any search term occurs, case-insensitively,
// in some string value of the document.
func compileText(t *qdsl.TextExpr) Predicate {
	terms := strings.Fields(strings.ToLower(t.Search))
	return func(doc any) bool {
		for _, s := range stringLeaves(doc, nil) {
			s = strings.ToLower(s)
			for _, term := range terms {
				if strings.Contains(s, term) {
					return true
				}
			}
		}
		return false
	}
}

// present reports a value that exists and is not null.
func present(values []any) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}
