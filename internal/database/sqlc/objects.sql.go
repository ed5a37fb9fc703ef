package sqldb

import (
	"context"
	"database/sql"
	"time"
)

const objectColumns = `id, dn, dn_norm, parent_dn, guid, created_at, updated_at, deleted_at`

func scanObject(row interface{ Scan(...any) error }) (Object, error) {
	var i Object
	err := row.Scan(
		&i.ID,
		&i.Dn,
		&i.DnNorm,
		&i.ParentDn,
		&i.Guid,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
	)
	return i, err
}

func (q *Queries) listObjects(ctx context.Context, query string, args ...any) ([]Object, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Object
	for rows.Next() {
		i, err := scanObject(rows)
		if err != nil {
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

const insertObject = `INSERT INTO objects (dn, dn_norm, parent_dn, guid, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertObjectParams struct {
	Dn        string
	DnNorm    string
	ParentDn  string
	Guid      string
	CreatedAt time.Time
}

func (q *Queries) InsertObject(ctx context.Context, arg InsertObjectParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertObject,
		arg.Dn,
		arg.DnNorm,
		arg.ParentDn,
		arg.Guid,
		arg.CreatedAt,
		arg.CreatedAt,
	)
}

const findObjectByID = `SELECT ` + objectColumns + ` FROM objects WHERE id = ?`

func (q *Queries) FindObjectByID(ctx context.Context, id int64) (Object, error) {
	return scanObject(q.db.QueryRowContext(ctx, findObjectByID, id))
}

const findLiveObjectByDN = `SELECT ` + objectColumns + ` FROM objects
WHERE dn_norm = ? AND deleted_at IS NULL`

func (q *Queries) FindLiveObjectByDN(ctx context.Context, dnNorm string) (Object, error) {
	return scanObject(q.db.QueryRowContext(ctx, findLiveObjectByDN, dnNorm))
}

const findLiveObjectByGUID = `SELECT ` + objectColumns + ` FROM objects
WHERE guid = ? AND deleted_at IS NULL`

func (q *Queries) FindLiveObjectByGUID(ctx context.Context, guid string) (Object, error) {
	return scanObject(q.db.QueryRowContext(ctx, findLiveObjectByGUID, guid))
}

const guidExists = `SELECT COUNT(*) FROM objects WHERE guid = ?`

func (q *Queries) GUIDExists(ctx context.Context, guid string) (bool, error) {
	var count int64
	if err := q.db.QueryRowContext(ctx, guidExists, guid).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const listDeletedObjectsByDN = `SELECT ` + objectColumns + ` FROM objects
WHERE dn_norm = ? AND deleted_at IS NOT NULL
ORDER BY deleted_at DESC, id DESC`

func (q *Queries) ListDeletedObjectsByDN(ctx context.Context, dnNorm string) ([]Object, error) {
	return q.listObjects(ctx, listDeletedObjectsByDN, dnNorm)
}

const listLiveDescendants = `SELECT ` + objectColumns + ` FROM objects
WHERE dn_norm LIKE ? ESCAPE '\' AND deleted_at IS NULL
ORDER BY length(dn_norm) ASC, id ASC`

// ListLiveDescendants expects a LIKE pattern of the form "%,<escaped base>".
func (q *Queries) ListLiveDescendants(ctx context.Context, suffixPattern string) ([]Object, error) {
	return q.listObjects(ctx, listLiveDescendants, suffixPattern)
}

const countLiveObjects = `SELECT COUNT(*) FROM objects WHERE deleted_at IS NULL`

func (q *Queries) CountLiveObjects(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countLiveObjects).Scan(&count)
	return count, err
}

const updateObjectDN = `UPDATE objects
SET dn = ?, dn_norm = ?, parent_dn = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL`

type UpdateObjectDNParams struct {
	Dn        string
	DnNorm    string
	ParentDn  string
	UpdatedAt time.Time
	ID        int64
}

func (q *Queries) UpdateObjectDN(ctx context.Context, arg UpdateObjectDNParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateObjectDN,
		arg.Dn,
		arg.DnNorm,
		arg.ParentDn,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const touchObject = `UPDATE objects SET updated_at = ? WHERE id = ?`

type TouchObjectParams struct {
	UpdatedAt time.Time
	ID        int64
}

func (q *Queries) TouchObject(ctx context.Context, arg TouchObjectParams) error {
	_, err := q.db.ExecContext(ctx, touchObject, arg.UpdatedAt, arg.ID)
	return err
}

const softDeleteObject = `UPDATE objects
SET deleted_at = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL`

type SoftDeleteObjectParams struct {
	DeletedAt time.Time
	ID        int64
}

func (q *Queries) SoftDeleteObject(ctx context.Context, arg SoftDeleteObjectParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, softDeleteObject, arg.DeletedAt, arg.DeletedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
