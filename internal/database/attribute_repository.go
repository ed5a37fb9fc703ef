package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	sqldb "github.com/choplin/dirsim/internal/database/sqlc"
	"github.com/choplin/dirsim/internal/filter"
)

// AttributeRepository stores attribute values. Matching keys (value_norm)
// are computed with the folder supplied at construction so the filter
// translator and the store agree on equality.
type AttributeRepository struct {
	ctx  *Context
	fold filter.Folder
}

func NewAttributeRepository(dbCtx *Context, fold filter.Folder) *AttributeRepository {
	if fold == nil {
		fold = func(_, value string) string { return filter.FoldValue(value) }
	}
	return &AttributeRepository{ctx: dbCtx, fold: fold}
}

type attributeValueRow struct {
	ObjectID int64  `db:"object_id"`
	Name     string `db:"name"`
	Value    string `db:"value"`
}

// LoadMany returns the attributes of several objects keyed by object ID. When
// names is non-empty only those attributes are loaded.
func (r *AttributeRepository) LoadMany(ctx context.Context, objectIDs []int64, names []string) (map[int64][]AttributeRecord, error) {
	result := make(map[int64][]AttributeRecord, len(objectIDs))
	if len(objectIDs) == 0 {
		return result, nil
	}
	if r.ctx == nil || r.ctx.DB == nil {
		return nil, fmt.Errorf("attribute repository: missing database context")
	}

	query := `SELECT a.object_id, a.name, v.value
FROM attributes a
JOIN attribute_values v ON v.attribute_id = a.id
WHERE a.object_id IN (?)`
	args := []any{objectIDs}
	if len(names) > 0 {
		folded := make([]string, len(names))
		for i, name := range names {
			folded[i] = filter.FoldName(name)
		}
		query += ` AND a.name_norm IN (?)`
		args = append(args, folded)
	}
	query += ` ORDER BY a.object_id ASC, a.id ASC, v.id ASC`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var rows []attributeValueRow
	if err := sqlx.SelectContext(ctx, r.ctx.ext(), &rows, r.ctx.DB.Rebind(query), args...); err != nil {
		return nil, err
	}

	for _, row := range rows {
		attrs := result[row.ObjectID]
		if n := len(attrs); n > 0 && attrs[n-1].Name == row.Name {
			attrs[n-1].Values = append(attrs[n-1].Values, row.Value)
		} else {
			attrs = append(attrs, AttributeRecord{Name: row.Name, Values: []string{row.Value}})
		}
		result[row.ObjectID] = attrs
	}
	return result, nil
}

// Values returns the values of one attribute, or nil when it is absent.
func (r *AttributeRepository) Values(ctx context.Context, objectID int64, name string) ([]string, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("attribute repository: missing database context")
	}

	attr, err := r.find(ctx, queries, objectID, name)
	if err != nil || attr == nil {
		return nil, err
	}

	rows, err := queries.ListValuesByAttribute(ctx, attr.ID)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Value)
	}
	return values, nil
}

// Add appends every value in order. Values already held are stored again.
func (r *AttributeRepository) Add(ctx context.Context, objectID int64, name string, values []string) error {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return fmt.Errorf("attribute repository: missing database context")
	}
	if len(values) == 0 {
		return nil
	}

	attrID, err := r.ensure(ctx, queries, objectID, name)
	if err != nil {
		return err
	}
	for _, value := range values {
		if err := r.insertValue(ctx, queries, attrID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// AddMissing appends the values that the attribute does not already hold,
// comparing folded forms. It returns the values actually added.
func (r *AttributeRepository) AddMissing(ctx context.Context, objectID int64, name string, values []string) ([]string, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("attribute repository: missing database context")
	}
	if len(values) == 0 {
		return nil, nil
	}

	attrID, err := r.ensure(ctx, queries, objectID, name)
	if err != nil {
		return nil, err
	}

	existing, err := queries.ListValuesByAttribute(ctx, attrID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing)+len(values))
	for _, row := range existing {
		seen[row.ValueNorm] = struct{}{}
	}

	var added []string
	for _, value := range values {
		norm := r.fold(name, value)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		if err := r.insertValue(ctx, queries, attrID, name, value); err != nil {
			return nil, err
		}
		added = append(added, value)
	}
	return added, nil
}

// Replace sets the attribute to exactly values, preserving their order. An
// empty list removes the attribute.
func (r *AttributeRepository) Replace(ctx context.Context, objectID int64, name string, values []string) error {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return fmt.Errorf("attribute repository: missing database context")
	}

	if len(values) == 0 {
		_, err := r.RemoveAll(ctx, objectID, name)
		return err
	}

	attrID, err := r.ensure(ctx, queries, objectID, name)
	if err != nil {
		return err
	}
	if _, err := queries.DeleteValuesByAttribute(ctx, attrID); err != nil {
		return err
	}
	for _, value := range values {
		if err := r.insertValue(ctx, queries, attrID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// RemoveValues deletes the named values and drops the attribute once it has
// none left. It returns how many stored values were removed.
func (r *AttributeRepository) RemoveValues(ctx context.Context, objectID int64, name string, values []string) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("attribute repository: missing database context")
	}

	attr, err := r.find(ctx, queries, objectID, name)
	if err != nil || attr == nil {
		return 0, err
	}

	var removed int64
	for _, value := range values {
		n, err := queries.DeleteValuesByNorm(ctx, sqldb.DeleteValuesByNormParams{
			AttributeID: attr.ID,
			ValueNorm:   r.fold(name, value),
		})
		if err != nil {
			return removed, err
		}
		removed += n
	}

	remaining, err := queries.CountValuesByAttribute(ctx, attr.ID)
	if err != nil {
		return removed, err
	}
	if remaining == 0 {
		if _, err := queries.DeleteAttribute(ctx, attr.ID); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// RemoveAll drops the attribute. It reports whether the attribute existed.
func (r *AttributeRepository) RemoveAll(ctx context.Context, objectID int64, name string) (bool, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return false, fmt.Errorf("attribute repository: missing database context")
	}

	attr, err := r.find(ctx, queries, objectID, name)
	if err != nil || attr == nil {
		return false, err
	}
	affected, err := queries.DeleteAttribute(ctx, attr.ID)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindReferences scans the whole store for live objects whose attribute
// name holds a value matching value.
func (r *AttributeRepository) FindReferences(ctx context.Context, name, value string) ([]ReferenceRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("attribute repository: missing database context")
	}

	rows, err := queries.ListReferencingValues(ctx, sqldb.ListReferencingValuesParams{
		NameNorm:  filter.FoldName(name),
		ValueNorm: r.fold(name, value),
	})
	if err != nil {
		return nil, err
	}

	result := make([]ReferenceRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, ReferenceRecord{
			ValueID:       row.ValueID,
			AttributeID:   row.AttributeID,
			ObjectID:      row.ObjectID,
			ObjectDN:      row.ObjectDn,
			AttributeName: row.AttributeName,
		})
	}
	return result, nil
}

// RewriteValue overwrites one stored value in place, keeping its position.
func (r *AttributeRepository) RewriteValue(ctx context.Context, valueID int64, name, value string) error {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return fmt.Errorf("attribute repository: missing database context")
	}
	return queries.UpdateValue(ctx, sqldb.UpdateValueParams{
		Value:     value,
		ValueNorm: r.fold(name, value),
		ValueNum:  numericValue(value),
		ID:        valueID,
	})
}

func (r *AttributeRepository) find(ctx context.Context, queries *sqldb.Queries, objectID int64, name string) (*sqldb.Attribute, error) {
	attr, err := queries.FindAttribute(ctx, sqldb.FindAttributeParams{ObjectID: objectID, NameNorm: filter.FoldName(name)})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &attr, nil
}

func (r *AttributeRepository) ensure(ctx context.Context, queries *sqldb.Queries, objectID int64, name string) (int64, error) {
	attr, err := r.find(ctx, queries, objectID, name)
	if err != nil {
		return 0, err
	}
	if attr != nil {
		return attr.ID, nil
	}

	res, err := queries.InsertAttribute(ctx, sqldb.InsertAttributeParams{
		ObjectID: objectID,
		Name:     name,
		NameNorm: filter.FoldName(name),
	})
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *AttributeRepository) insertValue(ctx context.Context, queries *sqldb.Queries, attrID int64, name, value string) error {
	return queries.InsertValue(ctx, sqldb.InsertValueParams{
		AttributeID: attrID,
		Value:       value,
		ValueNorm:   r.fold(name, value),
		ValueNum:    numericValue(value),
	})
}
