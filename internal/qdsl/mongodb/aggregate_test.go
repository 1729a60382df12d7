package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/e2eq/querycore/internal/plan"
)

func stageNames(p mongo.Pipeline) []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s[0].Key
	}
	return names
}

func customerJoin() *plan.JoinSpec {
	return &plan.JoinSpec{
		FromCollection: "customers",
		LocalIDExpr:    "customer.entityId",
		RemoteIDField:  "_id",
		TenantField:    "dataDomain.tenantId",
	}
}

func TestAggregateScalarExpansion(t *testing.T) {
	lp := &plan.LogicalPlan{
		RootType:   "Order",
		RootFilter: bson.D{{Key: "status", Value: bson.D{{Key: "$eq", Value: "OPEN"}}}},
		Expansions: []plan.Expand{{Path: "customer", Depth: 1, Join: customerJoin()}},
	}
	p, err := NewAggregationCompiler(nil).Compile(lp)
	require.NoError(t, err)
	assert.Equal(t, []string{"$match", "$lookup", "$set", "$project"}, stageNames(p))

	lookup := p[1][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "from", Value: "customers"},
		{Key: "let", Value: bson.D{
			{Key: "id", Value: "$customer.entityId"},
			{Key: "tenant", Value: "$dataDomain.tenantId"},
		}},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$_id", "$$id"}}},
				bson.D{{Key: "$eq", Value: bson.A{"$dataDomain.tenantId", "$$tenant"}}},
			}}}}}}},
		}},
		{Key: "as", Value: "__exp_customer"},
	}, lookup)

	assert.Equal(t,
		bson.D{{Key: "$set", Value: bson.D{{Key: "customer", Value: bson.D{{Key: "$first", Value: "$__exp_customer"}}}}}},
		p[2])
	assert.Equal(t,
		bson.D{{Key: "$project", Value: bson.D{{Key: "__exp_customer", Value: 0}}}},
		p[3])
}

func TestAggregateTenantClauseAlwaysPresent(t *testing.T) {
	join := customerJoin()
	join.LocalIDExpr = "items[*].product.entityId"
	join.FromCollection = "products"
	join.LocalIsArray = true
	lp := &plan.LogicalPlan{Expansions: []plan.Expand{{Path: "items[*].product", IsArray: true, Join: join}}}

	p, err := NewAggregationCompiler(nil).Compile(lp)
	require.NoError(t, err)
	lookup := p[0][0].Value.(bson.D)
	let := lookup[1].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "ids", Value: "$items.product.entityId"},
		{Key: "tenant", Value: "$dataDomain.tenantId"},
	}, let)

	expr := lookup[2].Value.(bson.A)[0].(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)
	clauses := expr[0].Value.(bson.A)
	require.Len(t, clauses, 2)
	assert.Equal(t, bson.D{{Key: "$eq", Value: bson.A{"$dataDomain.tenantId", "$$tenant"}}}, clauses[1])
}

func TestAggregateWithoutTenantField(t *testing.T) {
	join := customerJoin()
	join.TenantField = ""
	p, err := NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "customer", Join: join}},
	})
	require.NoError(t, err)
	lookup := p[0][0].Value.(bson.D)
	assert.Equal(t, bson.D{{Key: "id", Value: "$customer.entityId"}}, lookup[1].Value)
}

func TestAggregateArrayExpansion(t *testing.T) {
	join := &plan.JoinSpec{
		FromCollection: "products",
		LocalIDExpr:    "items[*].product.entityId",
		RemoteIDField:  "_id",
		TenantField:    "dataDomain.tenantId",
		LocalIsArray:   true,
	}
	p, err := NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "items[*].product", IsArray: true, Join: join}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"$lookup", "$set", "$project"}, stageNames(p))

	set := p[1][0].Value.(bson.D)
	require.Equal(t, "items", set[0].Key)
	m := set[0].Value.(bson.D)[0]
	assert.Equal(t, "$map", m.Key)
	spec := m.Value.(bson.D)
	assert.Equal(t, bson.E{Key: "input", Value: "$items"}, spec[0])
	assert.Equal(t, bson.E{Key: "as", Value: "it"}, spec[1])
	merge := spec[2].Value.(bson.D)[0]
	assert.Equal(t, "$mergeObjects", merge.Key)

	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{{Key: "__exp_items_product", Value: 0}}}}, p[2])
}

func TestAggregateArrayOfReferences(t *testing.T) {
	join := &plan.JoinSpec{
		FromCollection: "customers",
		LocalIDExpr:    "watchers[*].entityId",
		RemoteIDField:  "_id",
		LocalIsArray:   true,
	}
	p, err := NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "watchers[*]", IsArray: true, Join: join}},
	})
	require.NoError(t, err)
	merge := p[1][0].Value.(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)[2].Value.(bson.D)
	args := merge[0].Value.(bson.A)
	assert.Equal(t, "$$it", args[0])
}

func TestAggregateSortPageBeforeLookups(t *testing.T) {
	lp := &plan.LogicalPlan{
		Sort:       plan.Sort{{Field: "placedAt", Desc: true}, {Field: "orderNumber"}},
		Page:       &plan.Page{Limit: 10, Skip: 20},
		Expansions: []plan.Expand{{Path: "customer", Join: customerJoin()}},
	}
	p, err := NewAggregationCompiler(nil).Compile(lp)
	require.NoError(t, err)
	assert.Equal(t, []string{"$sort", "$skip", "$limit", "$lookup", "$set", "$project"}, stageNames(p))
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "placedAt", Value: -1}, {Key: "orderNumber", Value: 1}}}}, p[0])
	assert.Equal(t, bson.D{{Key: "$skip", Value: int64(20)}}, p[1])
	assert.Equal(t, bson.D{{Key: "$limit", Value: int64(10)}}, p[2])

	// sort and page without expansions
	p, err = NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{Sort: lp.Sort, Page: lp.Page})
	require.NoError(t, err)
	assert.Equal(t, []string{"$sort", "$skip", "$limit"}, stageNames(p))
}

func TestAggregateUnresolvedExpansion(t *testing.T) {
	_, err := NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "customer"}},
	})
	assert.True(t, ErrUnresolvedExpansion.Is(err))

	_, err = NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "customer", Join: &plan.JoinSpec{LocalIDExpr: "customer.entityId"}}},
	})
	assert.True(t, ErrUnresolvedExpansion.Is(err))
}

func TestAggregateUnsupportedArrayShape(t *testing.T) {
	join := &plan.JoinSpec{FromCollection: "x", LocalIDExpr: "a[*].b.c.entityId", LocalIsArray: true}
	_, err := NewAggregationCompiler(nil).Compile(&plan.LogicalPlan{
		Expansions: []plan.Expand{{Path: "a[*].b.c", IsArray: true, Join: join}},
	})
	assert.True(t, ErrUnsupportedExpansion.Is(err))
}

func TestProjectionStages(t *testing.T) {
	tests := []struct {
		name string
		p    *plan.Projection
		want []bson.D
	}{
		{"none", nil, nil},
		{
			"include adds _id",
			&plan.Projection{Include: []string{"total", "status"}, IncludeMode: true},
			[]bson.D{{{Key: "$project", Value: bson.D{{Key: "total", Value: 1}, {Key: "status", Value: 1}, {Key: "_id", Value: 1}}}}},
		},
		{
			"include with explicit _id",
			&plan.Projection{Include: []string{"_id", "total"}, IncludeMode: true},
			[]bson.D{{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}, {Key: "total", Value: 1}}}}},
		},
		{
			"include excluding _id",
			&plan.Projection{Include: []string{"total"}, Exclude: []string{"_id"}, IncludeMode: true},
			[]bson.D{{{Key: "$project", Value: bson.D{{Key: "total", Value: 1}, {Key: "_id", Value: 0}}}}},
		},
		{
			"nested exclusion gets its own stage",
			&plan.Projection{Include: []string{"customer"}, Exclude: []string{"customer.realm", "notes"}, IncludeMode: true},
			[]bson.D{
				{{Key: "$project", Value: bson.D{{Key: "customer", Value: 1}, {Key: "_id", Value: 1}}}},
				{{Key: "$project", Value: bson.D{{Key: "customer.realm", Value: 0}}}},
			},
		},
		{
			"exclude mode",
			&plan.Projection{Exclude: []string{"notes", "attributes"}},
			[]bson.D{{{Key: "$project", Value: bson.D{{Key: "notes", Value: 0}, {Key: "attributes", Value: 0}}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectionStages(tt.p))
		})
	}
}

func TestTempAlias(t *testing.T) {
	assert.Equal(t, "__exp_customer", TempAlias("customer"))
	assert.Equal(t, "__exp_items_product", TempAlias("items[*].product"))
	assert.Equal(t, "__exp_a_b_c", TempAlias("a.b.c"))
}

func TestAggregateIsDeterministic(t *testing.T) {
	lp := &plan.LogicalPlan{
		Sort:           plan.Sort{{Field: "a"}},
		Expansions:     []plan.Expand{{Path: "customer", Join: customerJoin()}},
		RootProjection: &plan.Projection{Include: []string{"a"}, IncludeMode: true},
	}
	c := NewAggregationCompiler(nil)
	first, err := c.Compile(lp)
	require.NoError(t, err)
	second, err := c.Compile(lp)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
