package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/schema"
	"github.com/e2eq/querycore/internal/service"
	"github.com/e2eq/querycore/internal/store"
)

func newRouter(t *testing.T, opts ...service.Option) *mux.Router {
	t.Helper()
	s := schema.NewRegistry()
	require.NoError(t, s.LoadYAML(context.Background(), "../../schema"))
	r := mux.NewRouter()
	New(service.NewGateway(metadata.New(s, nil), opts...), nil).Register(r)
	return r
}

func withStore(t *testing.T) service.Option {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.LoadFile("../../testdata/seed.yaml"))
	return service.WithStore(m)
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestRootTypes(t *testing.T) {
	rec, body := do(t, newRouter(t), http.MethodGet, "/api/query/rootTypes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []any{"Customer", "Location", "Order", "Product"}, body["rootTypes"])
}

func TestPlan(t *testing.T) {
	r := newRouter(t)

	rec, body := do(t, r, http.MethodPost, "/api/query/plan", `{"rootType":"Order","query":"status:active"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FILTER", body["mode"])
	assert.Equal(t, []any{}, body["expandPaths"])

	rec, body = do(t, r, http.MethodPost, "/api/query/plan", `{"rootType":"Order","query":"expand(customer) && status:active"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AGGREGATION", body["mode"])
	assert.Equal(t, []any{"customer"}, body["expandPaths"])
}

func TestCompile(t *testing.T) {
	rec, body := do(t, newRouter(t), http.MethodPost, "/api/query/compile",
		`{"rootType":"Order","query":"_id:^[65a1f0c2e4b0a1b2c3d4e5f1]","sort":"total.desc","limit":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "FILTER", body["mode"])
	assert.NotEmpty(t, body["planId"])
	assert.Equal(t, map[string]any{
		"_id": map[string]any{"$in": []any{map[string]any{"$oid": "65a1f0c2e4b0a1b2c3d4e5f1"}}},
	}, body["filter"])
	assert.Equal(t, map[string]any{"limit": 10.0}, body["page"])

	rec, body = do(t, newRouter(t), http.MethodPost, "/api/query/compile",
		`{"rootType":"Order","query":"expand(customer)"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	pipeline, ok := body["pipeline"].([]any)
	require.True(t, ok)
	assert.Len(t, pipeline, 3)
}

func TestValidate(t *testing.T) {
	rec, body := do(t, newRouter(t), http.MethodPost, "/api/query/validate", `{"rootType":"Order","query":"bogus:x && status:y"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, []any{"Field not found: bogus"}, body["errors"])

	_, body = do(t, newRouter(t), http.MethodPost, "/api/query/validate", `{"rootType":"Order","query":"status:y"}`)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, []any{}, body["errors"])
}

func TestFind(t *testing.T) {
	r := newRouter(t, withStore(t))
	rec, body := do(t, r, http.MethodPost, "/api/query/find",
		`{"rootType":"Order","query":"dataDomain.tenantId:acme","sort":"orderNumber"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2.0, body["count"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "SO-1001", results[0].(map[string]any)["orderNumber"])
}

func TestJoin(t *testing.T) {
	r := newRouter(t)
	rec, body := do(t, r, http.MethodGet, "/api/query/joins/Order?path=items%5B*%5D.product", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "products", body["fromCollection"])
	assert.Equal(t, true, body["localIsArray"])

	rec, body = do(t, r, http.MethodGet, "/api/query/joins/Order", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAM", body["code"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/query/plan", `{"rootType":`, http.StatusBadRequest, "INVALID_BODY"},
		{"unknown body field", http.MethodPost, "/api/query/plan", `{"rootType":"Order","bogus":1}`, http.StatusBadRequest, "INVALID_BODY"},
		{"missing root type", http.MethodPost, "/api/query/plan", `{"query":"a:b"}`, http.StatusBadRequest, "INVALID_BODY"},
		{"parse error", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"status:"}`, http.StatusBadRequest, "PARSE_ERROR"},
		{"unknown fields", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"bogus:x","strict":true}`, http.StatusBadRequest, "INVALID_FIELDS"},
		{"type mismatch", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"status:>#1"}`, http.StatusBadRequest, "INVALID_QUERY"},
		{"unresolved variable", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"status:${s}"}`, http.StatusBadRequest, "INVALID_QUERY"},
		{"bad sort", http.MethodPost, "/api/query/compile", `{"rootType":"Order","sort":"a."}`, http.StatusBadRequest, "INVALID_PARAM"},
		{"unknown type", http.MethodPost, "/api/query/compile", `{"rootType":"Nope"}`, http.StatusNotFound, "TYPE_NOT_FOUND"},
		{"bad join", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"expand(status)"}`, http.StatusUnprocessableEntity, "METADATA_ERROR"},
		{"bad projection", http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"fields:[+nope]"}`, http.StatusUnprocessableEntity, "METADATA_ERROR"},
		{"no store", http.MethodPost, "/api/query/find", `{"rootType":"Order"}`, http.StatusServiceUnavailable, "NO_STORE"},
		{"unknown join type", http.MethodGet, "/api/query/joins/Nope?path=customer", "", http.StatusNotFound, "TYPE_NOT_FOUND"},
	}
	r := newRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, body := do(t, newRouter(t), http.MethodPost, "/api/query/compile", `{"rootType":"Order","query":"status:a &&\n  (b:c"}`)
	assert.Equal(t, "PARSE_ERROR", body["code"])
	assert.Equal(t, 2.0, body["line"])
}

func TestFindAggregationUnsupported(t *testing.T) {
	rec, body := do(t, newRouter(t, withStore(t)), http.MethodPost, "/api/query/find",
		`{"rootType":"Order","query":"expand(customer)"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "UNSUPPORTED_PLAN", body["code"])
}
