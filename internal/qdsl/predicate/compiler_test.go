package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/e2eq/querycore/internal/qdsl"
)

type doc = map[string]any

func mustCompile(t *testing.T, query string) Predicate {
	t.Helper()
	p, err := Compile(query, nil, nil)
	require.NoError(t, err, query)
	return p
}

func TestCompileEquality(t *testing.T) {
	p := mustCompile(t, "field:#123")
	assert.True(t, p(doc{"field": 123}))
	assert.True(t, p(doc{"field": int64(123)}))
	assert.True(t, p(doc{"field": 123.0}))
	assert.False(t, p(doc{"field": 122}))
	assert.False(t, p(doc{}))

	p = mustCompile(t, "status:active")
	assert.True(t, p(doc{"status": "active"}))
	assert.False(t, p(doc{"status": "Active"}))

	p = mustCompile(t, "price:##9.5")
	assert.True(t, p(doc{"price": 9.5}))
	assert.False(t, p(doc{"price": 9}))
}

func TestCompileStringEqualityKeepsText(t *testing.T) {
	// a leading zero survives because both sides are strings
	p := mustCompile(t, "code:0606")
	assert.True(t, p(doc{"code": "0606"}))
	assert.False(t, p(doc{"code": "606"}))
}

func TestCompileBoolean(t *testing.T) {
	p := mustCompile(t, "active:TRUE")
	assert.True(t, p(doc{"active": true}))
	assert.True(t, p(doc{"active": "true"}))
	assert.False(t, p(doc{"active": false}))
	assert.False(t, p(doc{}))

	p = mustCompile(t, "active:false")
	assert.True(t, p(doc{"active": false}))
	assert.False(t, p(doc{"active": true}))
}

func TestCompileRelational(t *testing.T) {
	assert.True(t, mustCompile(t, "num:>#5")(doc{"num": 10}))
	assert.False(t, mustCompile(t, "num:<#10")(doc{"num": 10}))
	assert.True(t, mustCompile(t, "num:<=#10")(doc{"num": 10}))
	assert.True(t, mustCompile(t, "num:>=##9.99")(doc{"num": 10}))
	assert.False(t, mustCompile(t, "num:>#5")(doc{}))

	p := mustCompile(t, "placedAt:>2024-01-01")
	assert.True(t, p(doc{"placedAt": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}))
	assert.True(t, p(doc{"placedAt": "2024-02-01T00:00:00Z"}))
	assert.True(t, p(doc{"placedAt": primitive.NewDateTimeFromTime(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}))
	assert.False(t, p(doc{"placedAt": time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)}))
}

func TestCompileNotEqual(t *testing.T) {
	p := mustCompile(t, "status:!closed")
	assert.True(t, p(doc{"status": "open"}))
	assert.True(t, p(doc{}), "a missing field is not equal")
	assert.False(t, p(doc{"status": "closed"}))
	assert.False(t, p(doc{"status": []any{"open", "closed"}}))
}

func TestCompileNull(t *testing.T) {
	p := mustCompile(t, "owner:null")
	assert.True(t, p(doc{}))
	assert.True(t, p(doc{"owner": nil}))
	assert.False(t, p(doc{"owner": "x"}))

	p = mustCompile(t, "owner:!null")
	assert.True(t, p(doc{"owner": "x"}))
	assert.False(t, p(doc{"owner": nil}))
}

func TestCompileWildcard(t *testing.T) {
	p := mustCompile(t, "name:Acme*")
	assert.True(t, p(doc{"name": "Acme Corp"}))
	assert.False(t, p(doc{"name": "The Acme"}))

	p = mustCompile(t, "name:*corp*")
	assert.True(t, p(doc{"name": "megacorp ltd"}))

	p = mustCompile(t, "name:!a.b*")
	assert.True(t, p(doc{"name": "axb"}), "dots are literal")
	assert.False(t, p(doc{"name": "a.bc"}))
}

func TestCompileMembership(t *testing.T) {
	p := mustCompile(t, "color:^[red,blue]")
	assert.True(t, p(doc{"color": "red"}))
	assert.False(t, p(doc{"color": "green"}))

	p = mustCompile(t, "tags:^[delta,beta]")
	assert.True(t, p(doc{"tags": []any{"alpha", "beta", "gamma"}}))
	assert.False(t, p(doc{"tags": []any{"alpha", "gamma"}}))
	assert.True(t, p(doc{"tags": []string{"delta", "epsilon"}}))

	p = mustCompile(t, "color:!^[red,blue]")
	assert.False(t, p(doc{"color": "red"}))
	assert.True(t, p(doc{"color": "green"}))
	assert.True(t, p(doc{}))

	p = mustCompile(t, "n:^[1,2]")
	assert.True(t, p(doc{"n": 2}))
	assert.True(t, p(doc{"n": "2"}))

	assert.False(t, mustCompile(t, "n:^[]")(doc{"n": 1}))
}

func TestCompileObjectIDCoercion(t *testing.T) {
	hex := "65a1f0c2e4b0a1b2c3d4e5f1"
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)

	p := mustCompile(t, "_id:^["+hex+"]")
	assert.True(t, p(doc{"_id": oid}))
	assert.True(t, p(doc{"_id": hex}))

	p = mustCompile(t, `code:^["`+hex+`"]`)
	assert.True(t, p(doc{"code": hex}))
	assert.False(t, p(doc{"code": oid}), "a quoted id stays a string")
}

func TestCompileElemMatch(t *testing.T) {
	p := mustCompile(t, "arrayField:{sub:#1&&other:#2}")
	assert.True(t, p(doc{"arrayField": []any{
		doc{"sub": 1, "other": 3},
		doc{"sub": 1, "other": 2},
	}}))
	// both conditions must hold on the same element
	assert.False(t, p(doc{"arrayField": []any{
		doc{"sub": 1, "other": 3},
		doc{"sub": 2, "other": 2},
	}}))
	assert.False(t, p(doc{"arrayField": doc{"sub": 1, "other": 2}}))

	p = mustCompile(t, "arrayField:{(sub:<#12)||(sub:>#15)}")
	assert.True(t, p(doc{"arrayField": []any{doc{"sub": 20}}}))
	assert.False(t, p(doc{"arrayField": []any{doc{"sub": 13}}}))
}

func TestCompileDottedPaths(t *testing.T) {
	d := doc{
		"user":  doc{"address": doc{"city": "Oslo"}},
		"items": []any{doc{"sku": "A-1"}, doc{"sku": "B-7"}},
	}
	assert.True(t, mustCompile(t, "user.address.city:Oslo")(d))
	assert.False(t, mustCompile(t, "user.address.city:Bergen")(d))
	assert.True(t, mustCompile(t, "items.sku:B-7")(d), "arrays are flattened along the path")

	bd := bson.D{{Key: "user", Value: bson.M{"city": "Oslo"}}}
	assert.True(t, mustCompile(t, "user.city:Oslo")(bd))
}

func TestCompileBooleanOperators(t *testing.T) {
	p := mustCompile(t, "(a:1 || b:2) && !!c:3")
	assert.True(t, p(doc{"a": "1", "c": "4"}))
	assert.True(t, p(doc{"b": "2"}))
	assert.False(t, p(doc{"a": "1", "c": "3"}))
	assert.False(t, p(doc{"c": "4"}))
}

func TestCompileExistsAndText(t *testing.T) {
	p := mustCompile(t, "exists(customer)")
	assert.True(t, p(doc{"customer": doc{}}))
	assert.False(t, p(doc{"customer": nil}))
	assert.False(t, p(doc{}))

	p = mustCompile(t, `text("East warehouse")`)
	assert.True(t, p(doc{"notes": "ship to the east dock"}))
	assert.True(t, p(doc{"nested": []any{doc{"x": "WAREHOUSE 9"}}}))
	assert.False(t, p(doc{"notes": "west"}))
}

func TestCompileDirectivesMatchEverything(t *testing.T) {
	p := mustCompile(t, "expand(customer) && fields:[+a] && status:OPEN")
	assert.True(t, p(doc{"status": "OPEN"}))
	assert.False(t, p(doc{"status": "CLOSED"}))
	assert.True(t, mustCompile(t, "expand(customer)")(doc{}))
}

func TestCompileVariables(t *testing.T) {
	p, err := Compile("k:^[${list}]", map[string]string{"list": "a,b,c"}, nil)
	require.NoError(t, err)
	assert.True(t, p(doc{"k": "b"}))
	assert.False(t, p(doc{"k": "d"}))

	p, err = Compile("k:^[x,${ids}]", nil, map[string]any{"ids": []string{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, p(doc{"k": "a"}))
	assert.True(t, p(doc{"k": "x"}))

	p, err = Compile("owner:${me}", map[string]string{"me": "alice"}, nil)
	require.NoError(t, err)
	assert.True(t, p(doc{"owner": "alice"}))

	_, err = Compile("owner:${me}", nil, nil)
	assert.True(t, qdsl.ErrUnresolvedVariable.Is(err))
}

func TestCompileParseError(t *testing.T) {
	_, err := Compile("a:b &&", nil, nil)
	var pe *qdsl.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

type classes map[string]qdsl.FieldClass

func (c classes) FieldClass(path string) (qdsl.FieldClass, bool) {
	v, ok := c[path]
	return v, ok
}

func TestCompileWithFieldTypes(t *testing.T) {
	c := NewCompiler(WithFieldTypes(classes{"name": qdsl.ClassString, "code": qdsl.ClassString}))

	_, err := c.Compile("name:>#5")
	assert.True(t, qdsl.ErrTypeMismatch.Is(err))

	// declared string fields keep list words as strings
	p, err := c.Compile("code:^[007,12]")
	require.NoError(t, err)
	assert.True(t, p(doc{"code": "007"}))
	assert.False(t, p(doc{"code": "7"}))
}

func TestPredicateIsPure(t *testing.T) {
	p := mustCompile(t, "tags:^[a] && n:>#1")
	d := doc{"tags": []any{"a"}, "n": 2}
	for i := 0; i < 3; i++ {
		assert.True(t, p(d))
	}
	assert.Equal(t, doc{"tags": []any{"a"}, "n": 2}, d)
}
