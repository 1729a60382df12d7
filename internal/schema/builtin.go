package schema

// Built-in types every registry starts with. Entities usually extend
// BaseModel to get an _id, the data domain and its tenant field.
const (
	EntityReferenceType = "EntityReference"
	DataDomainType      = "DataDomain"
	BaseModelType       = "BaseModel"
)

func builtins() []*EntityDef {
	return []*EntityDef{
		{
			Name:     EntityReferenceType,
			Embedded: true,
			Fields: []FieldDef{
				{Name: "entityId", Kind: KindObjectID},
				{Name: "entityType", Kind: KindString},
				{Name: "entityRefName", Kind: KindString},
				{Name: "entityDisplayName", Kind: KindString},
				{Name: "realm", Kind: KindString},
			},
		},
		{
			Name:     DataDomainType,
			Embedded: true,
			Fields: []FieldDef{
				{Name: "orgRefName", Kind: KindString},
				{Name: "accountNum", Kind: KindString},
				{Name: "tenantId", Kind: KindString},
				{Name: "dataSegment", Kind: KindInt},
				{Name: "ownerId", Kind: KindString},
				{Name: "businessTransactionId", Kind: KindString},
				{Name: "locationId", Kind: KindString},
			},
		},
		{
			Name:        BaseModelType,
			Embedded:    true,
			TenantField: "dataDomain.tenantId",
			Fields: []FieldDef{
				{Name: "id", StoredAs: "_id", Kind: KindObjectID},
				{Name: "refName", Kind: KindString},
				{Name: "displayName", Kind: KindString},
				{Name: "dataDomain", Kind: KindObject, Type: DataDomainType},
				{Name: "activeStatus", Kind: KindString},
				{Name: "tags", Kind: KindArray, Elem: KindString},
				{Name: "skipValidation", Kind: KindBool, Transient: true},
			},
		},
	}
}
