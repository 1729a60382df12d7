// Package principal describes who is asking and what they are acting on,
// and turns both into query variable bindings.
package principal

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/e2eq/querycore/internal/qdsl"
)

// DataDomain scopes stored data to an organization, account and tenant.
type DataDomain struct {
	OrgRefName  string `json:"orgRefName" yaml:"orgRefName"`
	AccountNum  string `json:"accountNum" yaml:"accountNum"`
	TenantID    string `json:"tenantId" yaml:"tenantId"`
	DataSegment int    `json:"dataSegment" yaml:"dataSegment"`
	OwnerID     string `json:"ownerId" yaml:"ownerId"`
}

// DomainContext is the realm the principal currently acts in. It differs
// from DataDomain when a request switches realms.
type DomainContext struct {
	TenantID    string `json:"tenantId" yaml:"tenantId"`
	OrgRefName  string `json:"orgRefName" yaml:"orgRefName"`
	AccountID   string `json:"accountId" yaml:"accountId"`
	DataSegment int    `json:"dataSegment" yaml:"dataSegment"`
}

// Context identifies the caller.
type Context struct {
	UserID        string         `json:"userId" yaml:"userId"`
	DefaultRealm  string         `json:"defaultRealm" yaml:"defaultRealm"`
	DataDomain    DataDomain     `json:"dataDomain" yaml:"dataDomain"`
	DomainContext *DomainContext `json:"domainContext,omitempty" yaml:"domainContext,omitempty"`
	// Properties are resolver-supplied values; collections expand inside lists.
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Resource identifies what the caller is acting on.
type Resource struct {
	ResourceID       string `json:"resourceId" yaml:"resourceId"`
	Action           string `json:"action" yaml:"action"`
	FunctionalDomain string `json:"functionalDomain" yaml:"functionalDomain"`
	Area             string `json:"area" yaml:"area"`
}

// StandardVariables returns the scalar variables every query can use.
// Either argument may be nil.
func StandardVariables(pc *Context, rc *Resource) map[string]string {
	vars := make(map[string]string)
	if pc != nil {
		vars["principalId"] = pc.UserID
		vars["pAccountId"] = pc.DataDomain.AccountNum
		vars["pTenantId"] = pc.DataDomain.TenantID
		vars["systemTenantId"] = pc.DataDomain.TenantID
		vars["ownerId"] = pc.DataDomain.OwnerID
		vars["orgRefName"] = pc.DataDomain.OrgRefName
		vars["defaultRealm"] = pc.DefaultRealm

		if dc := pc.DomainContext; dc != nil {
			vars["dcTenantId"] = dc.TenantID
			vars["dcOrgRefName"] = dc.OrgRefName
			vars["dcAccountId"] = dc.AccountID
			vars["dcDataSegment"] = strconv.Itoa(dc.DataSegment)
		}

		for k, v := range pc.Properties {
			if s, ok := propertyString(v); ok {
				vars[k] = s
			}
		}
	}
	if rc != nil {
		vars["resourceId"] = rc.ResourceID
		vars["action"] = rc.Action
		vars["functionalDomain"] = rc.FunctionalDomain
		vars["area"] = rc.Area
	}
	return vars
}

// Bindings combines the standard variables with the principal's typed
// properties, so collection properties expand element-wise in lists.
func Bindings(pc *Context, rc *Resource) qdsl.Bindings {
	b := qdsl.Bindings{Vars: StandardVariables(pc, rc), Objects: map[string]any{}}
	if pc != nil {
		for k, v := range pc.Properties {
			if v != nil {
				b.Objects[k] = v
			}
		}
	}
	return b
}

func propertyString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s, true
	}
	if list, err := cast.ToStringSliceE(v); err == nil {
		return strings.Join(list, ","), true
	}
	return "", false
}
