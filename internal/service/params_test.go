package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2eq/querycore/internal/plan"
)

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw  string
		want plan.Sort
	}{
		{"", nil},
		{"refName", plan.Sort{{Field: "refName"}}},
		{"createdAt.desc, refName", plan.Sort{{Field: "createdAt", Desc: true}, {Field: "refName"}}},
		{"dataDomain.tenantId.ASC", plan.Sort{{Field: "dataDomain.tenantId"}}},
		{"customer.realm", plan.Sort{{Field: "customer.realm"}}},
		{"a,,b", plan.Sort{{Field: "a"}, {Field: "b"}}},
	}
	for _, tt := range tests {
		got, err := ParseSort(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	for _, raw := range []string{".desc", "a.", "total,.asc"} {
		_, err := ParseSort(raw)
		assert.True(t, ErrInvalidParam.Is(err), raw)
	}
}

func TestLimitsPage(t *testing.T) {
	l := Limits{Default: 50, Max: 200}
	tests := []struct {
		name        string
		limit, skip int
		execute     bool
		want        *plan.Page
	}{
		{"no paging", 0, 0, false, nil},
		{"executed reads get the default", 0, 0, true, &plan.Page{Limit: 50}},
		{"explicit limit", 10, 5, true, &plan.Page{Limit: 10, Skip: 5}},
		{"capped", 500, 0, false, &plan.Page{Limit: 200}},
		{"skip only", 0, 20, false, &plan.Page{Skip: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.page(tt.limit, tt.skip, tt.execute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := l.page(-1, 0, false)
	assert.True(t, ErrInvalidParam.Is(err))
	assert.EqualError(t, err, "invalid limit: -1")
	_, err = l.page(0, -3, true)
	assert.True(t, ErrInvalidParam.Is(err))
}
