// Package planner chooses between a plain filter and an aggregation
// pipeline for a query and produces the compiled result.
package planner

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/plan"
	"github.com/e2eq/querycore/internal/principal"
	"github.com/e2eq/querycore/internal/qdsl"
	"github.com/e2eq/querycore/internal/qdsl/mongodb"
	"github.com/e2eq/querycore/internal/schema"
)

const maxParallelJoins = 4

// Planner is safe for concurrent use; every call works on its own parse
// tree and shares only the metadata registry.
type Planner struct {
	meta *metadata.Registry
	agg  *mongodb.AggregationCompiler
	log  logrus.FieldLogger
}

func New(meta *metadata.Registry, log logrus.FieldLogger) *Planner {
	if log == nil {
		log = logrus.WithField("component", "planner")
	}
	return &Planner{meta: meta, agg: mongodb.NewAggregationCompiler(log), log: log}
}

// Request is one query to plan.
type Request struct {
	Query    string
	RootType string
	Sort     plan.Sort
	Page     *plan.Page

	Bindings  qdsl.Bindings
	Principal *principal.Context
	Resource  *principal.Resource

	// ValidateFields rejects filters on unknown fields with a
	// *schema.FieldValidationError listing all of them.
	ValidateFields bool
}

// Analyze reports the execution mode and expand paths of a query
// without compiling it. A blank query is a FILTER query.
func (p *Planner) Analyze(query string) (*plan.Result, error) {
	res := &plan.Result{Mode: plan.ModeFilter, ExpandPaths: []string{}}
	if strings.TrimSpace(query) == "" {
		return res, nil
	}
	root, err := qdsl.Parse(query)
	if err != nil {
		return nil, err
	}
	a := qdsl.Analyze(root)
	if len(a.ExpandPaths) > 0 {
		res.Mode = plan.ModeAggregation
		res.ExpandPaths = a.ExpandPaths
	}
	return res, nil
}

// Plan compiles a query for its root type. Syntax errors, unknown fields,
// unresolved joins and unknown projected fields all fail the whole call;
// nothing partial is returned.
func (p *Planner) Plan(req Request) (*plan.PlannedQuery, error) {
	lp, mode, err := p.build(req)
	if err != nil {
		return nil, err
	}

	out := &plan.PlannedQuery{
		ID:          uuid.New(),
		RootType:    req.RootType,
		Mode:        mode,
		ExpandPaths: []string{},
	}
	for _, exp := range lp.Expansions {
		out.ExpandPaths = append(out.ExpandPaths, exp.Path)
	}

	if mode == plan.ModeFilter {
		out.Filter = lp.RootFilter
		out.Sort = lp.Sort
		out.Page = lp.Page
		out.Projection = lp.RootProjection
		return out, nil
	}

	pipeline, err := p.agg.Compile(lp)
	if err != nil {
		return nil, err
	}
	out.Pipeline = pipeline

	p.log.WithFields(logrus.Fields{
		"planId":     out.ID,
		"rootType":   req.RootType,
		"expansions": out.ExpandPaths,
	}).Debug("aggregation mode selected")
	return out, nil
}

// LogicalPlan builds the logical plan of a query without lowering it.
func (p *Planner) LogicalPlan(req Request) (*plan.LogicalPlan, error) {
	lp, _, err := p.build(req)
	return lp, err
}

func (p *Planner) build(req Request) (*plan.LogicalPlan, plan.Mode, error) {
	schemas := p.meta.Schemas()
	if schemas.Get(req.RootType) == nil {
		return nil, 0, schema.ErrUnknownEntity.New(req.RootType)
	}
	validator, err := schema.ForType(schemas, req.RootType)
	if err != nil {
		return nil, 0, err
	}

	lp := &plan.LogicalPlan{
		RootType:   req.RootType,
		Sort:       req.Sort,
		Page:       req.Page,
		RootFilter: bson.D{},
	}
	if strings.TrimSpace(req.Query) == "" {
		return lp, plan.ModeFilter, nil
	}

	root, err := qdsl.Parse(req.Query)
	if err != nil {
		return nil, 0, err
	}
	if req.ValidateFields && !validator.ValidateNode(root) {
		return nil, 0, validator.Err()
	}

	fc := mongodb.NewFilterCompiler(
		mongodb.WithPrincipal(req.Principal, req.Resource),
		mongodb.WithBindings(req.Bindings),
		mongodb.WithFieldTypes(validator),
		mongodb.WithLogger(p.log),
	)
	if lp.RootFilter, err = fc.CompileNode(root); err != nil {
		return nil, 0, err
	}

	a := qdsl.Analyze(root)
	if a.Projection != nil {
		lp.RootProjection = projection(a.Projection)
		if err := p.meta.ValidateProjection(req.RootType, lp.RootProjection); err != nil {
			return nil, 0, err
		}
	}

	if len(a.ExpandPaths) == 0 {
		return lp, plan.ModeFilter, nil
	}
	joins, err := p.resolveJoins(req.RootType, a.ExpandPaths)
	if err != nil {
		return nil, 0, err
	}
	for i, path := range a.ExpandPaths {
		lp.Expansions = append(lp.Expansions, plan.Expand{
			Path:    path,
			Depth:   1,
			IsArray: joins[i].LocalIsArray,
			Join:    joins[i],
		})
	}
	return lp, plan.ModeAggregation, nil
}

// resolveJoins resolves every expand path concurrently. When several
// paths fail, the error of the first one in query order is returned.
func (p *Planner) resolveJoins(rootType string, paths []string) ([]*plan.JoinSpec, error) {
	joins := make([]*plan.JoinSpec, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(maxParallelJoins)
	for i, path := range paths {
		g.Go(func() error {
			joins[i], errs[i] = p.meta.ResolveJoin(rootType, path)
			return errs[i]
		})
	}
	if g.Wait() != nil {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	return joins, nil
}

// projection converts fields:[...] items. Any included path switches the
// projection to include mode.
func projection(fe *qdsl.FieldsExpr) *plan.Projection {
	p := &plan.Projection{}
	seen := make(map[string]bool)
	for _, item := range fe.Items {
		if seen[item.Path] {
			continue
		}
		seen[item.Path] = true
		if item.Exclude {
			p.Exclude = append(p.Exclude, item.Path)
			continue
		}
		p.Include = append(p.Include, item.Path)
		p.IncludeMode = true
	}
	return p
}
