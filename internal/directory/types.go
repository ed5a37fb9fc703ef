package directory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/scope"
)

// Attributes maps attribute names, in display case, to ordered values.
// Look names up with Get or Has; indexing the map directly is case-sensitive.
type Attributes map[string][]string

// Get returns the values of name, matching the key case-insensitively.
func (a Attributes) Get(name string) []string {
	if values, ok := a[name]; ok {
		return values
	}
	folded := filter.FoldName(name)
	for key, values := range a {
		if filter.FoldName(key) == folded {
			return values
		}
	}
	return nil
}

// Has reports whether name carries at least one value.
func (a Attributes) Has(name string) bool {
	return len(a.Get(name)) > 0
}

// Names returns the keys in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalized merges keys that differ only in case and drops empty lists.
func (a Attributes) normalized() Attributes {
	out := make(Attributes, len(a))
	index := make(map[string]string, len(a))
	for _, name := range a.Names() {
		values := a[name]
		if len(values) == 0 {
			continue
		}
		folded := filter.FoldName(name)
		if existing, ok := index[folded]; ok {
			out[existing] = append(out[existing], values...)
			continue
		}
		index[folded] = name
		out[name] = append([]string(nil), values...)
	}
	return out
}

// Entry is an object as seen by callers.
type Entry struct {
	DN         string
	GUID       string
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Query describes a search.
type Query struct {
	BaseDN string
	// Scope defaults to a subtree search.
	Scope  scope.ScopeType
	Filter *filter.Filter
	// Attributes selects the attributes to return; empty or "*" returns all.
	Attributes []string
	SizeLimit  int
	OrderBy    string
	Descending bool
}

// Operation is the kind of a Modification.
type Operation string

const (
	OpAdd       Operation = "add"
	OpReplace   Operation = "replace"
	OpRemove    Operation = "remove"
	OpRemoveAll Operation = "remove-all"
)

// Modification is one step of a batch modify.
//
// Add appends values the attribute does not hold yet. Replace sets the
// exact value list; an empty list removes the attribute. Remove deletes the
// named values, or the whole attribute when Values is empty. RemoveAll
// deletes the attribute.
type Modification struct {
	Attribute string
	Operation Operation
	Values    []string
}

// ParseOperation accepts the operation names, plus the LDAP spellings
// "delete" and "remove_all".
func ParseOperation(value string) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(value))) {
	case OpAdd:
		return OpAdd, nil
	case OpReplace:
		return OpReplace, nil
	case OpRemove, "delete":
		return OpRemove, nil
	case OpRemoveAll, "remove_all", "removeall":
		return OpRemoveAll, nil
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidModification, value)
}
