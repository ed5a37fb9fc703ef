package sqldb

import "context"

const deleteAllValues = `DELETE FROM attribute_values`

func (q *Queries) DeleteAllValues(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllValues)
	return err
}

const deleteAllAttributes = `DELETE FROM attributes`

func (q *Queries) DeleteAllAttributes(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllAttributes)
	return err
}

const deleteAllObjects = `DELETE FROM objects`

func (q *Queries) DeleteAllObjects(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllObjects)
	return err
}
