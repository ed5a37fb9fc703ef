package database

import (
	"github.com/choplin/dirsim/internal/filter"
)

// FilterStorage renders filter leaves against the attribute tables. The
// predicates it produces are correlated with the objects alias "o" used by
// SearchQuery.
type FilterStorage struct{}

var _ filter.Storage = FilterStorage{}

func (FilterStorage) HasValue(attribute string, cond filter.Predicate) filter.Predicate {
	sql := `EXISTS (SELECT 1 FROM attributes a JOIN attribute_values v ON v.attribute_id = a.id WHERE a.object_id = o.id AND a.name_norm = ?`
	args := []any{filter.FoldName(attribute)}
	if !cond.IsEmpty() {
		sql += " AND (" + cond.SQL + ")"
		args = append(args, cond.Args...)
	}
	return filter.Predicate{SQL: sql + ")", Args: args}
}

func (FilterStorage) TextColumn() string {
	return "v.value_norm"
}

func (FilterStorage) NumberColumn() string {
	return "v.value_num"
}
