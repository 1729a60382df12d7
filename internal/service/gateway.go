// Package service is the query gateway: plan inspection, compilation,
// validation and execution of FILTER plans.
package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/plan"
	"github.com/e2eq/querycore/internal/planner"
	"github.com/e2eq/querycore/internal/principal"
	"github.com/e2eq/querycore/internal/qdsl"
	"github.com/e2eq/querycore/internal/qdsl/predicate"
	"github.com/e2eq/querycore/internal/schema"
	"github.com/e2eq/querycore/internal/store"
)

var (
	// ErrUnsupportedPlan is returned when a plan needs pipeline execution
	// and the gateway cannot run pipelines. The gateway never falls back
	// to a FILTER read, which would drop the expansions.
	ErrUnsupportedPlan = errors.NewKind("plan mode %s requires pipeline execution, which is not available")

	// ErrNoStore is returned by Find when no store is configured.
	ErrNoStore = errors.NewKind("query execution is not configured")
)

// Store executes FILTER reads.
type Store interface {
	Find(ctx context.Context, collection string, match predicate.Predicate, order plan.Sort, page *plan.Page, proj *plan.Projection) ([]store.Document, error)
}

// PipelineRunner is implemented by stores that execute aggregation pipelines.
type PipelineRunner interface {
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]store.Document, error)
}

var _ Store = (*store.Memory)(nil)

type Gateway struct {
	meta               *metadata.Registry
	planner            *planner.Planner
	store              Store
	aggregationEnabled bool
	limits             Limits
	log                logrus.FieldLogger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithStore enables Find.
func WithStore(s Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithAggregation allows AGGREGATION plans to run when the store is a PipelineRunner.
func WithAggregation(enabled bool) Option {
	return func(g *Gateway) { g.aggregationEnabled = enabled }
}

func WithLimits(l Limits) Option {
	return func(g *Gateway) { g.limits = l }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = l }
}

func NewGateway(meta *metadata.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		meta:   meta,
		limits: Limits{Default: DefaultLimit, Max: MaxLimit},
		log:    logrus.WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.planner = planner.New(meta, g.log)
	return g
}

// QueryRequest is the input shared by every gateway operation.
type QueryRequest struct {
	RootType  string              `json:"rootType"`
	Query     string              `json:"query"`
	Sort      string              `json:"sort,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Skip      int                 `json:"skip,omitempty"`
	Vars      map[string]string   `json:"vars,omitempty"`
	Objects   map[string]any      `json:"objectVars,omitempty"`
	Principal *principal.Context  `json:"principal,omitempty"`
	Resource  *principal.Resource `json:"resource,omitempty"`
	Strict    bool                `json:"strict,omitempty"` // reject unknown filter fields
}

func (g *Gateway) requireType(name string) (*schema.EntityDef, error) {
	def := g.meta.Schemas().Get(name)
	if def == nil || def.Embedded {
		return nil, schema.ErrUnknownEntity.New(name)
	}
	return def, nil
}

// RootTypes lists the entity types queries can target.
func (g *Gateway) RootTypes() []string {
	return g.meta.Schemas().RootTypes()
}

// Plan reports how a query would execute without compiling it.
func (g *Gateway) Plan(_ context.Context, req QueryRequest) (*plan.Result, error) {
	if _, err := g.requireType(req.RootType); err != nil {
		return nil, err
	}
	return g.planner.Analyze(req.Query)
}

// Compile plans and compiles a query.
func (g *Gateway) Compile(_ context.Context, req QueryRequest) (*plan.PlannedQuery, error) {
	return g.compile(req, false)
}

func (g *Gateway) compile(req QueryRequest, execute bool) (*plan.PlannedQuery, error) {
	if _, err := g.requireType(req.RootType); err != nil {
		return nil, err
	}
	order, err := ParseSort(req.Sort)
	if err != nil {
		return nil, err
	}
	page, err := g.limits.page(req.Limit, req.Skip, execute)
	if err != nil {
		return nil, err
	}
	return g.planner.Plan(planner.Request{
		Query:          req.Query,
		RootType:       req.RootType,
		Sort:           order,
		Page:           page,
		Bindings:       qdsl.Bindings{Vars: req.Vars, Objects: req.Objects},
		Principal:      req.Principal,
		Resource:       req.Resource,
		ValidateFields: req.Strict,
	})
}

// Validate returns every unknown field a query references. Syntax errors
// are returned as errors.
func (g *Gateway) Validate(_ context.Context, req QueryRequest) ([]string, error) {
	if _, err := g.requireType(req.RootType); err != nil {
		return nil, err
	}
	v, err := schema.ForType(g.meta.Schemas(), req.RootType)
	if err != nil {
		return nil, err
	}
	if _, err := v.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	return v.Errors(), nil
}

// ResolveJoin exposes join resolution for inspection.
func (g *Gateway) ResolveJoin(_ context.Context, rootType, path string) (*plan.JoinSpec, error) {
	if _, err := g.requireType(rootType); err != nil {
		return nil, err
	}
	return g.meta.ResolveJoin(rootType, path)
}

// FindResult is the outcome of an executed query.
type FindResult struct {
	PlanID    string           `json:"planId"`
	Mode      plan.Mode        `json:"mode"`
	Documents []store.Document `json:"documents"`
}

// Find plans a query and runs it. AGGREGATION plans run only when
// aggregation is enabled and the store can run pipelines; otherwise the
// call fails with ErrUnsupportedPlan.
func (g *Gateway) Find(ctx context.Context, req QueryRequest) (*FindResult, error) {
	if g.store == nil {
		return nil, ErrNoStore.New()
	}
	def, err := g.requireType(req.RootType)
	if err != nil {
		return nil, err
	}
	pq, err := g.compile(req, true)
	if err != nil {
		return nil, err
	}
	log := g.log.WithFields(logrus.Fields{"planId": pq.ID, "rootType": req.RootType, "mode": pq.Mode})

	if pq.Mode == plan.ModeAggregation {
		runner, ok := g.store.(PipelineRunner)
		if !g.aggregationEnabled || !ok {
			log.Warn("aggregation plan rejected: pipeline execution unavailable")
			return nil, ErrUnsupportedPlan.New(pq.Mode)
		}
		docs, err := runner.Aggregate(ctx, def.CollectionName(), pq.Pipeline)
		if err != nil {
			return nil, err
		}
		return &FindResult{PlanID: pq.ID.String(), Mode: pq.Mode, Documents: docs}, nil
	}

	match, err := g.predicate(req)
	if err != nil {
		return nil, err
	}
	docs, err := g.store.Find(ctx, def.CollectionName(), match, pq.Sort, pq.Page, pq.Projection)
	if err != nil {
		return nil, err
	}
	log.WithField("count", len(docs)).Debug("filter query executed")
	return &FindResult{PlanID: pq.ID.String(), Mode: pq.Mode, Documents: docs}, nil
}

// predicate compiles the in-memory twin of the plan's filter, with the
// same bindings and field types.
func (g *Gateway) predicate(req QueryRequest) (predicate.Predicate, error) {
	v, err := schema.ForType(g.meta.Schemas(), req.RootType)
	if err != nil {
		return nil, err
	}
	bindings := principal.Bindings(req.Principal, req.Resource).Merge(qdsl.Bindings{Vars: req.Vars, Objects: req.Objects})
	c := predicate.NewCompiler(
		predicate.WithBindings(bindings),
		predicate.WithFieldTypes(v),
		predicate.WithLogger(g.log),
	)
	if strings.TrimSpace(req.Query) == "" {
		return func(any) bool { return true }, nil
	}
	return c.Compile(req.Query)
}
