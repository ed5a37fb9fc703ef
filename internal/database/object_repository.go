package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqldb "github.com/choplin/dirsim/internal/database/sqlc"
)

type ObjectRepository struct {
	ctx *Context
}

func NewObjectRepository(dbCtx *Context) *ObjectRepository {
	return &ObjectRepository{ctx: dbCtx}
}

func (r *ObjectRepository) FindByID(ctx context.Context, id int64) (*ObjectRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("object repository: missing database context")
	}

	row, err := queries.FindObjectByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := mapObjectRow(row)
	return &record, nil
}

// FindByDN looks up the live object with the given normalised DN.
func (r *ObjectRepository) FindByDN(ctx context.Context, dnNorm string) (*ObjectRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("object repository: missing database context")
	}

	row, err := queries.FindLiveObjectByDN(ctx, dnNorm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := mapObjectRow(row)
	return &record, nil
}

func (r *ObjectRepository) FindByGUID(ctx context.Context, guid string) (*ObjectRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("object repository: missing database context")
	}

	row, err := queries.FindLiveObjectByGUID(ctx, guid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := mapObjectRow(row)
	return &record, nil
}

// GUIDExists also considers tombstones, so a GUID is never reused.
func (r *ObjectRepository) GUIDExists(ctx context.Context, guid string) (bool, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return false, fmt.Errorf("object repository: missing database context")
	}
	return queries.GUIDExists(ctx, guid)
}

// ListDeleted returns tombstones that last held dnNorm, newest first.
func (r *ObjectRepository) ListDeleted(ctx context.Context, dnNorm string) ([]ObjectRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("object repository: missing database context")
	}

	rows, err := queries.ListDeletedObjectsByDN(ctx, dnNorm)
	if err != nil {
		return nil, err
	}
	return mapObjectRows(rows), nil
}

// ListDescendants returns the live objects strictly below dnNorm, shallowest
// first.
func (r *ObjectRepository) ListDescendants(ctx context.Context, dnNorm string) ([]ObjectRecord, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("object repository: missing database context")
	}

	rows, err := queries.ListLiveDescendants(ctx, descendantPattern(dnNorm))
	if err != nil {
		return nil, err
	}
	return mapObjectRows(rows), nil
}

func (r *ObjectRepository) Count(ctx context.Context) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("object repository: missing database context")
	}
	return queries.CountLiveObjects(ctx)
}

func (r *ObjectRepository) Create(ctx context.Context, obj NewObject, now time.Time) (int64, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return 0, fmt.Errorf("object repository: missing database context")
	}

	res, err := queries.InsertObject(ctx, sqldb.InsertObjectParams{
		Dn:        obj.DN,
		DnNorm:    obj.DNNorm,
		ParentDn:  obj.ParentDN,
		Guid:      obj.GUID,
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateDN moves a live object. It reports false when no live row matched.
func (r *ObjectRepository) UpdateDN(ctx context.Context, id int64, dn, dnNorm, parentNorm string, now time.Time) (bool, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return false, fmt.Errorf("object repository: missing database context")
	}

	affected, err := queries.UpdateObjectDN(ctx, sqldb.UpdateObjectDNParams{
		Dn:        dn,
		DnNorm:    dnNorm,
		ParentDn:  parentNorm,
		UpdatedAt: now,
		ID:        id,
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ObjectRepository) Touch(ctx context.Context, id int64, now time.Time) error {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return fmt.Errorf("object repository: missing database context")
	}
	return queries.TouchObject(ctx, sqldb.TouchObjectParams{UpdatedAt: now, ID: id})
}

// SoftDelete turns a live object into a tombstone.
func (r *ObjectRepository) SoftDelete(ctx context.Context, id int64, now time.Time) (bool, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return false, fmt.Errorf("object repository: missing database context")
	}

	affected, err := queries.SoftDeleteObject(ctx, sqldb.SoftDeleteObjectParams{DeletedAt: now, ID: id})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
