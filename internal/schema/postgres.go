package schema

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

func loadQuery() (string, []any, error) {
	return sq.Select(
		"e.name", "e.collection", "e.extends", "e.embedded", "e.tenant_field", "e.id_field",
		"f.name", "f.stored_as", "f.kind", "f.elem", "f.type_name",
		"f.ref_target", "f.ref_collection", "f.transient",
	).
		From("metadata.entities e").
		LeftJoin("metadata.entity_fields f ON f.entity_name = e.name").
		OrderBy("e.name", "f.position").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// LoadPostgres replaces the registry contents with descriptors stored in
// the metadata.entities and metadata.entity_fields tables.
func (r *Registry) LoadPostgres(ctx context.Context, db Querier) error {
	query, args, err := loadQuery()
	if err != nil {
		return fmt.Errorf("schema load query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("schema load: %w", err)
	}
	defer rows.Close()

	var order []*EntityDef
	byName := make(map[string]*EntityDef)

	for rows.Next() {
		var (
			eName, eCollection, eExtends   *string
			eEmbedded                      bool
			eTenantField, eIDField         *string
			fName, fStoredAs, fKind, fElem *string
			fType, fRefTarget, fRefColl    *string
			fTransient                     *bool
		)
		err := rows.Scan(
			&eName, &eCollection, &eExtends, &eEmbedded, &eTenantField, &eIDField,
			&fName, &fStoredAs, &fKind, &fElem, &fType,
			&fRefTarget, &fRefColl, &fTransient,
		)
		if err != nil {
			return fmt.Errorf("schema load scan: %w", err)
		}

		def, exists := byName[deref(eName)]
		if !exists {
			def = &EntityDef{
				Name:        deref(eName),
				Collection:  deref(eCollection),
				Extends:     deref(eExtends),
				Embedded:    eEmbedded,
				TenantField: deref(eTenantField),
				IDField:     deref(eIDField),
			}
			byName[def.Name] = def
			order = append(order, def)
		}

		if fName != nil {
			field := FieldDef{
				Name:     *fName,
				StoredAs: deref(fStoredAs),
				Kind:     FieldKind(deref(fKind)),
				Elem:     FieldKind(deref(fElem)),
				Type:     deref(fType),
			}
			if fRefTarget != nil || fRefColl != nil {
				field.Ref = &RefDef{Target: deref(fRefTarget), Collection: deref(fRefColl)}
			}
			if fTransient != nil {
				field.Transient = *fTransient
			}
			def.Fields = append(def.Fields, field)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema load rows: %w", err)
	}

	return r.Replace(order)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
