// Package scope resolves a base DN and scope type into the constraint a
// search runs under.
package scope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/choplin/dirsim/internal/dn"
)

type ScopeType string

const (
	// ScopeRead selects only the base object.
	ScopeRead ScopeType = "read"
	// ScopeListing selects the immediate children of the base.
	ScopeListing ScopeType = "listing"
	// ScopeSearch selects the base and every descendant.
	ScopeSearch ScopeType = "search"
)

type Scope struct {
	Type   ScopeType
	BaseDN string
}

func NewRead(base string) Scope {
	return Scope{Type: ScopeRead, BaseDN: base}
}

func NewListing(base string) Scope {
	return Scope{Type: ScopeListing, BaseDN: base}
}

func NewSearch(base string) Scope {
	return Scope{Type: ScopeSearch, BaseDN: base}
}

// ParseScopeType accepts the directory names (read, listing, search) and the
// LDAP protocol names (base, one, sub).
func ParseScopeType(value string) (ScopeType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "read", "base", "baseobject":
		return ScopeRead, nil
	case "listing", "list", "one", "onelevel", "singlelevel":
		return ScopeListing, nil
	case "search", "sub", "subtree", "wholesubtree", "":
		return ScopeSearch, nil
	}
	return "", fmt.Errorf("unknown scope type: %s", value)
}

func Validate(s Scope) error {
	switch s.Type {
	case ScopeRead:
		if strings.TrimSpace(s.BaseDN) == "" {
			return errors.New("read scope requires a base DN")
		}
	case ScopeListing, ScopeSearch:
	default:
		return fmt.Errorf("unknown scope type: %s", s.Type)
	}

	if _, err := dn.Parse(s.BaseDN); err != nil {
		return err
	}
	return nil
}

func FormatScope(s Scope) string {
	base := s.BaseDN
	if base == "" {
		base = "<root>"
	}
	return fmt.Sprintf("%s(%s)", s.Type, base)
}

// Constraint is a resolved scope: the scope type plus the normalised base.
type Constraint struct {
	Type ScopeType
	Base string
}

// Resolve validates s and normalises its base DN.
func Resolve(s Scope) (Constraint, error) {
	if err := Validate(s); err != nil {
		return Constraint{}, err
	}

	base, err := dn.Normalize(s.BaseDN)
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{Type: s.Type, Base: base}, nil
}
