// Package mongodb lowers queries and logical plans to MongoDB filters and
// aggregation pipelines.
package mongodb

import (
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/e2eq/querycore/internal/principal"
	"github.com/e2eq/querycore/internal/qdsl"
)

var compareOps = map[qdsl.CompareOp]string{
	qdsl.OpEq:  "$eq",
	qdsl.OpNeq: "$ne",
	qdsl.OpGt:  "$gt",
	qdsl.OpGte: "$gte",
	qdsl.OpLt:  "$lt",
	qdsl.OpLte: "$lte",
}

// FilterCompiler turns a parsed query into a MongoDB filter document. It
// agrees with the in-memory predicate compiler on every operator.
type FilterCompiler struct {
	bindings qdsl.Bindings
	types    qdsl.FieldTypes
	log      logrus.FieldLogger
}

// FilterOption configures a FilterCompiler.
type FilterOption func(*FilterCompiler)

// WithBindings layers ad-hoc bindings over any already configured.
func WithBindings(b qdsl.Bindings) FilterOption {
	return func(c *FilterCompiler) { c.bindings = c.bindings.Merge(b) }
}

// WithPrincipal resolves ${name} against the caller and resource context.
// Bindings applied later take precedence.
func WithPrincipal(pc *principal.Context, rc *principal.Resource) FilterOption {
	return func(c *FilterCompiler) { c.bindings = principal.Bindings(pc, rc).Merge(c.bindings) }
}

// WithFieldTypes enables type checks against declared fields.
func WithFieldTypes(t qdsl.FieldTypes) FilterOption {
	return func(c *FilterCompiler) { c.types = t }
}

// WithLogger sets the logger used for compile warnings.
func WithLogger(l logrus.FieldLogger) FilterOption {
	return func(c *FilterCompiler) { c.log = l }
}

func NewFilterCompiler(opts ...FilterOption) *FilterCompiler {
	c := &FilterCompiler{log: logrus.WithField("component", "filter")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileFilter parses query and builds a filter, substituting principal
// and resource variables.
func CompileFilter(query string, pc *principal.Context, rc *principal.Resource) (bson.D, error) {
	return NewFilterCompiler(WithPrincipal(pc, rc)).Compile(query)
}

// Compile parses and compiles a query string.
func (c *FilterCompiler) Compile(query string) (bson.D, error) {
	root, err := qdsl.Parse(query)
	if err != nil {
		return nil, err
	}
	return c.CompileNode(root)
}

// CompileNode compiles a parsed query. Planning directives contribute
// nothing; a query made only of directives yields an empty filter.
func (c *FilterCompiler) CompileNode(root qdsl.Node) (bson.D, error) {
	if err := qdsl.CheckTypes(root, c.types); err != nil {
		return nil, err
	}
	f, err := c.compileNode(root, "")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return bson.D{}, nil
	}
	return f, nil
}

func (c *FilterCompiler) compileNode(node qdsl.Node, prefix string) (bson.D, error) {
	switch n := node.(type) {
	case *qdsl.BinaryOp:
		if n.Op == "||" {
			return c.compileJunction("$or", qdsl.Disjuncts(n), prefix)
		}
		return c.compileJunction("$and", qdsl.Conjuncts(n), prefix)
	case *qdsl.NotExpr:
		inner, err := c.compileNode(n.Expr, prefix)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	case *qdsl.Comparison:
		return c.compileComparison(n)
	case *qdsl.InExpr:
		return c.compileIn(n, prefix)
	case *qdsl.ElemMatch:
		inner, err := c.compileNode(n.Cond, prefix+n.Field+".")
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: n.Field, Value: bson.D{{Key: "$elemMatch", Value: inner}}}}, nil
	case *qdsl.ExistsExpr:
		return bson.D{{Key: n.Field, Value: bson.D{
			{Key: "$exists", Value: true},
			{Key: "$ne", Value: nil},
		}}}, nil
	case *qdsl.TextExpr:
		return bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: n.Search}}}}, nil
	case *qdsl.ExpandExpr, *qdsl.FieldsExpr:
		return nil, nil
	default:
		return nil, qdsl.ErrUnsupportedNode.New(node)
	}
}

func (c *FilterCompiler) compileJunction(op string, terms []qdsl.Node, prefix string) (bson.D, error) {
	parts := make(bson.A, 0, len(terms))
	for _, t := range terms {
		f, err := c.compileNode(t, prefix)
		if err != nil {
			return nil, err
		}
		if f != nil {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0].(bson.D), nil
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

func (c *FilterCompiler) compileComparison(cmp *qdsl.Comparison) (bson.D, error) {
	field := cmp.Field
	switch cmp.Value.Kind {
	case qdsl.LitNull:
		if cmp.Op == qdsl.OpNeq {
			return bson.D{{Key: field, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
		}
		return bson.D{{Key: field, Value: nil}}, nil
	case qdsl.LitWildcard:
		re := bson.D{{Key: field, Value: bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: qdsl.WildcardPattern(cmp.Value.Text)}}}}}
		if cmp.Op == qdsl.OpNeq {
			return bson.D{{Key: "$nor", Value: bson.A{re}}}, nil
		}
		return re, nil
	}

	v, err := c.bindings.Resolve(cmp.Value)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: field, Value: bson.D{{Key: compareOps[cmp.Op], Value: v}}}}, nil
}

func (c *FilterCompiler) compileIn(in *qdsl.InExpr, prefix string) (bson.D, error) {
	keep := qdsl.KeepsStrings(c.types, prefix+in.Field)
	values, err := c.bindings.ResolveList(in.Items, keep, func(name string) {
		c.log.WithField("field", in.Field).Warnf("variable ${%s} expanded to an empty list; the $in filter matches no documents", name)
	})
	if err != nil {
		return nil, err
	}
	op := "$in"
	if in.Negate {
		op = "$nin"
	}
	return bson.D{{Key: in.Field, Value: bson.D{{Key: op, Value: bson.A(values)}}}}, nil
}
