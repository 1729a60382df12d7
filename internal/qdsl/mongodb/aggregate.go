package mongodb

import (
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/e2eq/querycore/internal/plan"
)

const (
	tempPrefix = "__exp_"
	arrayHop   = "[*]"
)

var (
	// ErrUnresolvedExpansion is returned for an expansion without a usable join.
	ErrUnresolvedExpansion = errors.NewKind("expansion %q has no resolved join target")

	// ErrUnsupportedExpansion is returned for join shapes the pipeline cannot merge.
	ErrUnsupportedExpansion = errors.NewKind("expansion %q: %s")
)

// AggregationCompiler lowers a LogicalPlan into pipeline stages.
type AggregationCompiler struct {
	log logrus.FieldLogger
}

func NewAggregationCompiler(log logrus.FieldLogger) *AggregationCompiler {
	if log == nil {
		log = logrus.WithField("component", "aggregation")
	}
	return &AggregationCompiler{log: log}
}

// Compile emits, in order: the root $match, $sort, $skip, $limit, then a
// $lookup, merge and cleanup $project per expansion, then the root
// projection. The output depends only on the plan.
func (c *AggregationCompiler) Compile(lp *plan.LogicalPlan) (mongo.Pipeline, error) {
	var stages mongo.Pipeline

	if len(lp.RootFilter) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: lp.RootFilter}})
	}
	stages = append(stages, windowStages(lp.Sort, lp.Page)...)

	for _, exp := range lp.Expansions {
		expStages, err := c.expansionStages(exp)
		if err != nil {
			return nil, err
		}
		stages = append(stages, expStages...)
	}

	stages = append(stages, projectionStages(lp.RootProjection)...)

	c.log.WithFields(logrus.Fields{
		"rootType":   lp.RootType,
		"expansions": len(lp.Expansions),
		"stages":     len(stages),
	}).Debug("compiled aggregation pipeline")
	return stages, nil
}

func windowStages(sort plan.Sort, page *plan.Page) []bson.D {
	var stages []bson.D
	if len(sort) > 0 {
		keys := make(bson.D, 0, len(sort))
		for _, s := range sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			keys = append(keys, bson.E{Key: s.Field, Value: dir})
		}
		stages = append(stages, bson.D{{Key: "$sort", Value: keys}})
	}
	if page != nil && page.Skip > 0 {
		stages = append(stages, bson.D{{Key: "$skip", Value: int64(page.Skip)}})
	}
	if page != nil && page.Limit > 0 {
		stages = append(stages, bson.D{{Key: "$limit", Value: int64(page.Limit)}})
	}
	return stages
}

// TempAlias is the lookup output field used while merging an expansion.
func TempAlias(path string) string {
	return tempPrefix + strings.ReplaceAll(strings.ReplaceAll(path, arrayHop, ""), ".", "_")
}

func (c *AggregationCompiler) expansionStages(exp plan.Expand) ([]bson.D, error) {
	join := exp.Join
	if join == nil || join.FromCollection == "" {
		return nil, ErrUnresolvedExpansion.New(exp.Path)
	}
	remote := join.RemoteIDField
	if remote == "" {
		remote = "_id"
	}
	temp := TempAlias(exp.Path)
	isArray := exp.IsArray || join.LocalIsArray

	let := bson.D{}
	var idCond bson.D
	local := "$" + strings.ReplaceAll(join.LocalIDExpr, arrayHop, "")
	if isArray {
		let = append(let, bson.E{Key: "ids", Value: local})
		idCond = bson.D{{Key: "$in", Value: bson.A{"$" + remote, bson.D{{Key: "$ifNull", Value: bson.A{"$$ids", bson.A{}}}}}}}
	} else {
		let = append(let, bson.E{Key: "id", Value: local})
		idCond = bson.D{{Key: "$eq", Value: bson.A{"$" + remote, "$$id"}}}
	}

	cond := idCond
	if join.TenantField != "" {
		// tenant correlation is mandatory whenever the join declares a tenant field
		let = append(let, bson.E{Key: "tenant", Value: "$" + join.TenantField})
		cond = bson.D{{Key: "$and", Value: bson.A{
			idCond,
			bson.D{{Key: "$eq", Value: bson.A{"$" + join.TenantField, "$$tenant"}}},
		}}}
	}

	lookup := bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: join.FromCollection},
		{Key: "let", Value: let},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: cond}}}},
		}},
		{Key: "as", Value: temp},
	}}}

	var merge bson.D
	if isArray {
		var err error
		merge, err = arrayMerge(exp.Path, temp, remote)
		if err != nil {
			return nil, err
		}
	} else {
		merge = bson.D{{Key: "$set", Value: bson.D{{Key: exp.Path, Value: bson.D{{Key: "$first", Value: "$" + temp}}}}}}
	}

	cleanup := bson.D{{Key: "$project", Value: bson.D{{Key: temp, Value: 0}}}}
	return []bson.D{lookup, merge, cleanup}, nil
}

// arrayMerge maps over the array and merges each element with the joined
// document whose id matches the element's reference. Elements without a
// match are left as they are.
func arrayMerge(path, temp, remote string) (bson.D, error) {
	arrayPath, rest, _ := strings.Cut(path, arrayHop)
	rest = strings.TrimPrefix(rest, ".")
	if strings.Contains(rest, arrayHop) {
		return nil, ErrUnsupportedExpansion.New(path, "only one array hop is supported")
	}
	if strings.Contains(rest, ".") {
		return nil, ErrUnsupportedExpansion.New(path, "the reference must be a direct field of the array element")
	}

	idExpr := "$$it.entityId"
	if rest != "" {
		idExpr = "$$it." + rest + ".entityId"
	}
	matched := bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{{Key: "idx", Value: bson.D{{Key: "$indexOfArray", Value: bson.A{"$" + temp + "." + remote, idExpr}}}}}},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gte", Value: bson.A{"$$idx", 0}}},
			bson.D{{Key: "$arrayElemAt", Value: bson.A{"$" + temp, "$$idx"}}},
			nil,
		}}}},
	}}}

	var in bson.D
	if rest == "" {
		in = bson.D{{Key: "$mergeObjects", Value: bson.A{"$$it", matched}}}
	} else {
		in = bson.D{{Key: "$mergeObjects", Value: bson.A{"$$it", bson.D{{Key: rest, Value: bson.D{
			{Key: "$ifNull", Value: bson.A{matched, "$$it." + rest}},
		}}}}}}
	}

	return bson.D{{Key: "$set", Value: bson.D{{Key: arrayPath, Value: bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$" + arrayPath},
		{Key: "as", Value: "it"},
		{Key: "in", Value: in},
	}}}}}}}, nil
}

// projectionStages renders the root projection. Include mode keeps _id
// unless it is excluded explicitly; exclusions nested under an included
// path need their own stage because one $project cannot mix both.
func projectionStages(p *plan.Projection) []bson.D {
	if p == nil || (len(p.Include) == 0 && len(p.Exclude) == 0) {
		return nil
	}

	if !p.IncludeMode {
		fields := bson.D{}
		for _, path := range p.Exclude {
			fields = append(fields, bson.E{Key: path, Value: 0})
		}
		return []bson.D{{{Key: "$project", Value: fields}}}
	}

	fields := bson.D{}
	hasID := false
	for _, path := range p.Include {
		if path == "_id" {
			hasID = true
		}
		fields = append(fields, bson.E{Key: path, Value: 1})
	}
	var nested bson.D
	for _, path := range p.Exclude {
		switch {
		case path == "_id":
			hasID = true
			fields = append(fields, bson.E{Key: "_id", Value: 0})
		case underAny(path, p.Include):
			nested = append(nested, bson.E{Key: path, Value: 0})
		}
	}
	if !hasID {
		fields = append(fields, bson.E{Key: "_id", Value: 1})
	}

	stages := []bson.D{{{Key: "$project", Value: fields}}}
	if len(nested) > 0 {
		stages = append(stages, bson.D{{Key: "$project", Value: nested}})
	}
	return stages
}

func underAny(path string, parents []string) bool {
	for _, parent := range parents {
		if strings.HasPrefix(path, parent+".") {
			return true
		}
	}
	return false
}
