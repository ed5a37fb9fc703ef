package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	sqldb "github.com/choplin/dirsim/internal/database/sqlc"
	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/scope"
)

// SearchParams describes one search over live objects.
type SearchParams struct {
	Scope scope.Constraint
	// Where is produced by filter.Compile with FilterStorage. Empty matches
	// every object in scope.
	Where filter.Predicate
	// Limit caps the result size; zero means unlimited.
	Limit int
	// OrderBy sorts by the first value of an attribute, numbers before text.
	// Empty keeps insertion order.
	OrderBy    string
	Descending bool
}

type SearchQuery struct {
	ctx *Context
}

func NewSearchQuery(dbCtx *Context) *SearchQuery {
	return &SearchQuery{ctx: dbCtx}
}

// Run returns the matching objects. Tombstones never match.
func (q *SearchQuery) Run(ctx context.Context, params SearchParams) ([]ObjectRecord, error) {
	if q.ctx == nil || q.ctx.DB == nil {
		return nil, fmt.Errorf("search query: missing database context")
	}

	query, args, err := buildSearch(params)
	if err != nil {
		return nil, err
	}

	var rows []sqldb.Object
	if err := sqlx.SelectContext(ctx, q.ctx.ext(), &rows, q.ctx.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return mapObjectRows(rows), nil
}

func buildSearch(params SearchParams) (string, []any, error) {
	var b strings.Builder
	var args []any

	b.WriteString(`SELECT o.id, o.dn, o.dn_norm, o.parent_dn, o.guid, o.created_at, o.updated_at, o.deleted_at
FROM objects o
WHERE o.deleted_at IS NULL`)

	scopeSQL, scopeArgs, err := scopeClause(params.Scope)
	if err != nil {
		return "", nil, err
	}
	if scopeSQL != "" {
		b.WriteString(" AND ")
		b.WriteString(scopeSQL)
		args = append(args, scopeArgs...)
	}

	if !params.Where.IsEmpty() {
		b.WriteString(" AND (")
		b.WriteString(params.Where.SQL)
		b.WriteString(")")
		args = append(args, params.Where.Args...)
	}

	b.WriteString(" ORDER BY ")
	if params.OrderBy != "" {
		dir := "ASC"
		if params.Descending {
			dir = "DESC"
		}
		firstValue := `(SELECT %s FROM attributes a JOIN attribute_values v ON v.attribute_id = a.id
WHERE a.object_id = o.id AND a.name_norm = ? ORDER BY v.id ASC LIMIT 1) %s NULLS LAST, `
		fmt.Fprintf(&b, firstValue, "v.value_num", dir)
		fmt.Fprintf(&b, firstValue, "v.value_norm", dir)
		name := filter.FoldName(params.OrderBy)
		args = append(args, name, name)
	}
	b.WriteString("o.id ASC")

	if params.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, params.Limit)
	}

	return b.String(), args, nil
}

func scopeClause(c scope.Constraint) (string, []any, error) {
	switch c.Type {
	case scope.ScopeRead:
		return "o.dn_norm = ?", []any{c.Base}, nil
	case scope.ScopeListing:
		return "o.parent_dn = ?", []any{c.Base}, nil
	case scope.ScopeSearch:
		if c.Base == "" {
			return "", nil, nil
		}
		return `(o.dn_norm = ? OR o.dn_norm LIKE ? ESCAPE '\')`, []any{c.Base, descendantPattern(c.Base)}, nil
	}
	return "", nil, fmt.Errorf("search query: unknown scope type %q", c.Type)
}
