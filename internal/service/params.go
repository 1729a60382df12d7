package service

import (
	"strings"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/e2eq/querycore/internal/plan"
)

// ErrInvalidParam is returned for a malformed sort, limit or skip.
var ErrInvalidParam = errors.NewKind("invalid %s: %v")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Limits bounds page sizes for executed reads.
type Limits struct {
	Default int
	Max     int
}

// ParseSort reads "field", "field.asc" or "field.desc" terms, comma
// separated, e.g. "createdAt.desc,refName".
func ParseSort(raw string) (plan.Sort, error) {
	var out plan.Sort
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		field, dir := term, ""
		if i := strings.LastIndexByte(term, '.'); i > 0 {
			switch strings.ToLower(term[i+1:]) {
			case "asc", "desc":
				field, dir = term[:i], strings.ToLower(term[i+1:])
			}
		}
		if field == "" || strings.HasPrefix(field, ".") || strings.HasSuffix(field, ".") {
			return nil, ErrInvalidParam.New("sort term", term)
		}
		out = append(out, plan.SortField{Field: field, Desc: dir == "desc"})
	}
	return out, nil
}

// page builds the page for a request. Executed reads always get a limit.
func (l Limits) page(limit, skip int, execute bool) (*plan.Page, error) {
	if limit < 0 {
		return nil, ErrInvalidParam.New("limit", limit)
	}
	if skip < 0 {
		return nil, ErrInvalidParam.New("skip", skip)
	}
	if execute && limit == 0 {
		limit = l.Default
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	if limit == 0 && skip == 0 {
		return nil, nil
	}
	return &plan.Page{Limit: limit, Skip: skip}, nil
}
