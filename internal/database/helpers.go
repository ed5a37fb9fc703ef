package database

import (
	"database/sql"
	"strings"
	"time"

	sqldb "github.com/choplin/dirsim/internal/database/sqlc"
	"github.com/choplin/dirsim/internal/filter"
)

func optionalTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}

func optionalTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func numericValue(value string) sql.NullFloat64 {
	n, ok := filter.NumericValue(value)
	if !ok {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: n, Valid: true}
}

// escapeLike escapes LIKE metacharacters with backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// descendantPattern matches every normalised DN strictly below base.
func descendantPattern(base string) string {
	return "%," + escapeLike(base)
}

func mapObjectRow(row sqldb.Object) ObjectRecord {
	return ObjectRecord{
		ID:        row.ID,
		DN:        row.Dn,
		DNNorm:    row.DnNorm,
		ParentDN:  row.ParentDn,
		GUID:      row.Guid,
		CreatedAt: optionalTime(row.CreatedAt),
		UpdatedAt: optionalTime(row.UpdatedAt),
		DeletedAt: optionalTimePtr(row.DeletedAt),
	}
}

func mapObjectRows(rows []sqldb.Object) []ObjectRecord {
	result := make([]ObjectRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapObjectRow(row))
	}
	return result
}

func queriesFromContext(ctx *Context) *sqldb.Queries {
	if ctx == nil {
		return nil
	}
	if ctx.Queries != nil {
		return ctx.Queries
	}
	if ctx.DB == nil {
		return nil
	}
	return sqldb.New(ctx.DB)
}
