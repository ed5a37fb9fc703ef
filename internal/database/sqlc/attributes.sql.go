package sqldb

import (
	"context"
	"database/sql"
)

const findAttribute = `SELECT id, object_id, name, name_norm FROM attributes
WHERE object_id = ? AND name_norm = ?`

type FindAttributeParams struct {
	ObjectID int64
	NameNorm string
}

func (q *Queries) FindAttribute(ctx context.Context, arg FindAttributeParams) (Attribute, error) {
	row := q.db.QueryRowContext(ctx, findAttribute, arg.ObjectID, arg.NameNorm)
	var i Attribute
	err := row.Scan(&i.ID, &i.ObjectID, &i.Name, &i.NameNorm)
	return i, err
}

const insertAttribute = `INSERT INTO attributes (object_id, name, name_norm) VALUES (?, ?, ?)`

type InsertAttributeParams struct {
	ObjectID int64
	Name     string
	NameNorm string
}

func (q *Queries) InsertAttribute(ctx context.Context, arg InsertAttributeParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertAttribute, arg.ObjectID, arg.Name, arg.NameNorm)
}

const deleteAttribute = `DELETE FROM attributes WHERE id = ?`

func (q *Queries) DeleteAttribute(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAttribute, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listValuesByAttribute = `SELECT id, attribute_id, value, value_norm, value_num FROM attribute_values
WHERE attribute_id = ?
ORDER BY id ASC`

func (q *Queries) ListValuesByAttribute(ctx context.Context, attributeID int64) ([]AttributeValue, error) {
	rows, err := q.db.QueryContext(ctx, listValuesByAttribute, attributeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AttributeValue
	for rows.Next() {
		var i AttributeValue
		if err := rows.Scan(&i.ID, &i.AttributeID, &i.Value, &i.ValueNorm, &i.ValueNum); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertValue = `INSERT INTO attribute_values (attribute_id, value, value_norm, value_num) VALUES (?, ?, ?, ?)`

type InsertValueParams struct {
	AttributeID int64
	Value       string
	ValueNorm   string
	ValueNum    sql.NullFloat64
}

func (q *Queries) InsertValue(ctx context.Context, arg InsertValueParams) error {
	_, err := q.db.ExecContext(ctx, insertValue, arg.AttributeID, arg.Value, arg.ValueNorm, arg.ValueNum)
	return err
}

const updateValue = `UPDATE attribute_values SET value = ?, value_norm = ?, value_num = ? WHERE id = ?`

type UpdateValueParams struct {
	Value     string
	ValueNorm string
	ValueNum  sql.NullFloat64
	ID        int64
}

func (q *Queries) UpdateValue(ctx context.Context, arg UpdateValueParams) error {
	_, err := q.db.ExecContext(ctx, updateValue, arg.Value, arg.ValueNorm, arg.ValueNum, arg.ID)
	return err
}

const deleteValuesByNorm = `DELETE FROM attribute_values WHERE attribute_id = ? AND value_norm = ?`

type DeleteValuesByNormParams struct {
	AttributeID int64
	ValueNorm   string
}

func (q *Queries) DeleteValuesByNorm(ctx context.Context, arg DeleteValuesByNormParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteValuesByNorm, arg.AttributeID, arg.ValueNorm)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteValuesByAttribute = `DELETE FROM attribute_values WHERE attribute_id = ?`

func (q *Queries) DeleteValuesByAttribute(ctx context.Context, attributeID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteValuesByAttribute, attributeID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countValuesByAttribute = `SELECT COUNT(*) FROM attribute_values WHERE attribute_id = ?`

func (q *Queries) CountValuesByAttribute(ctx context.Context, attributeID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countValuesByAttribute, attributeID).Scan(&count)
	return count, err
}

const listReferencingValues = `SELECT v.id, v.attribute_id, a.object_id, o.dn, a.name
FROM attribute_values v
JOIN attributes a ON a.id = v.attribute_id
JOIN objects o ON o.id = a.object_id
WHERE a.name_norm = ? AND v.value_norm = ? AND o.deleted_at IS NULL
ORDER BY v.id ASC`

type ListReferencingValuesParams struct {
	NameNorm  string
	ValueNorm string
}

type ListReferencingValuesRow struct {
	ValueID       int64
	AttributeID   int64
	ObjectID      int64
	ObjectDn      string
	AttributeName string
}

func (q *Queries) ListReferencingValues(ctx context.Context, arg ListReferencingValuesParams) ([]ListReferencingValuesRow, error) {
	rows, err := q.db.QueryContext(ctx, listReferencingValues, arg.NameNorm, arg.ValueNorm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListReferencingValuesRow
	for rows.Next() {
		var i ListReferencingValuesRow
		if err := rows.Scan(&i.ValueID, &i.AttributeID, &i.ObjectID, &i.ObjectDn, &i.AttributeName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
