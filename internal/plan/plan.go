// Package plan holds the planner's output: the execution mode, the
// logical plan for aggregation and the compiled query handed to a store.
package plan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Mode is the execution strategy chosen for a query.
type Mode int

const (
	ModeFilter      Mode = iota // plain filtered read
	ModeAggregation             // pipeline with joins
)

func (m Mode) String() string {
	if m == ModeAggregation {
		return "AGGREGATION"
	}
	return "FILTER"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "FILTER":
		*m = ModeFilter
	case "AGGREGATION":
		*m = ModeAggregation
	default:
		return fmt.Errorf("unknown plan mode %q", b)
	}
	return nil
}

// JoinSpec describes how a reference field joins to another collection.
type JoinSpec struct {
	FromCollection string `json:"fromCollection"`
	LocalIDExpr    string `json:"localIdExpr"`   // e.g. customer.entityId, items[*].product.entityId
	RemoteIDField  string `json:"remoteIdField"` // identifier field in FromCollection
	TenantField    string `json:"tenantField,omitempty"`
	LocalIsArray   bool   `json:"localIsArray"`
}

// Projection is a set of included and excluded field paths.
type Projection struct {
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	IncludeMode bool     `json:"includeMode"`
}

// Paths returns every path named by the projection.
func (p *Projection) Paths() []string {
	if p == nil {
		return nil
	}
	return append(append([]string(nil), p.Include...), p.Exclude...)
}

// Expand is one relationship to join and hydrate.
type Expand struct {
	Path       string      `json:"path"` // [*] marks an array hop
	Depth      int         `json:"depth"`
	Projection *Projection `json:"projection,omitempty"`
	IsArray    bool        `json:"isArray"`
	Join       *JoinSpec   `json:"join,omitempty"`
}

// SortField orders results by one field.
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Sort is an ordered list of sort fields.
type Sort []SortField

// Page limits results. Zero values mean no limit and no skip.
type Page struct {
	Limit int `json:"limit,omitempty"`
	Skip  int `json:"skip,omitempty"`
}

// LogicalPlan is the backend-independent description of an aggregation.
// It is built once by the planner and not modified afterwards.
type LogicalPlan struct {
	RootType       string
	RootProjection *Projection
	Expansions     []Expand
	Sort           Sort
	Page           *Page
	RootFilter     bson.D
}

// Result reports the chosen mode without compiling anything.
type Result struct {
	Mode        Mode     `json:"mode"`
	ExpandPaths []string `json:"expandPaths"`
}

// PlannedQuery is a compiled query. Exactly one of Filter and Pipeline
// is set, according to Mode.
type PlannedQuery struct {
	ID          uuid.UUID      `json:"planId"`
	RootType    string         `json:"rootType"`
	Mode        Mode           `json:"mode"`
	ExpandPaths []string       `json:"expandPaths"`
	Filter      bson.D         `json:"filter,omitempty"`
	Pipeline    mongo.Pipeline `json:"pipeline,omitempty"`

	// Sort, Page and Projection apply to FILTER mode reads; in AGGREGATION
	// mode they are already lowered into the pipeline.
	Sort       Sort        `json:"sort,omitempty"`
	Page       *Page       `json:"page,omitempty"`
	Projection *Projection `json:"projection,omitempty"`
}
