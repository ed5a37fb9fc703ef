// Package dn parses and normalises LDAP distinguished names.
//
// Parsing is delegated to go-ldap; this package adds the pieces the directory
// store needs on top: a case-preserving canonical rendering, a case-folded
// rendering used for matching, parent derivation and subtree rebasing.
package dn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrMalformed is returned when a string cannot be decomposed into RDN and
// parent components.
var ErrMalformed = errors.New("malformed identifier")

// AVA is a single attribute type and value pair inside an RDN.
type AVA struct {
	Type  string
	Value string
}

// RDN is one relative distinguished name. Multi-valued RDNs carry more than
// one AVA (cn=a+uid=b).
type RDN struct {
	AVAs []AVA
}

// DN is a parsed distinguished name, leaf first.
type DN struct {
	RDNs []RDN
}

// Parse decomposes s into its RDNs. The empty string parses to the empty
// (root) DN.
func Parse(s string) (DN, error) {
	parsed, err := ldap.ParseDN(s)
	if err != nil {
		return DN{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}

	result := DN{RDNs: make([]RDN, 0, len(parsed.RDNs))}
	for _, rdn := range parsed.RDNs {
		if rdn == nil || len(rdn.Attributes) == 0 {
			return DN{}, fmt.Errorf("%w: %q: empty relative name", ErrMalformed, s)
		}
		next := RDN{AVAs: make([]AVA, 0, len(rdn.Attributes))}
		for _, attr := range rdn.Attributes {
			if strings.TrimSpace(attr.Type) == "" {
				return DN{}, fmt.Errorf("%w: %q: missing attribute type", ErrMalformed, s)
			}
			next.AVAs = append(next.AVAs, AVA{Type: strings.TrimSpace(attr.Type), Value: attr.Value})
		}
		result.RDNs = append(result.RDNs, next)
	}
	return result, nil
}

// ParseEntry parses s and rejects the root DN, which cannot name an entry.
func ParseEntry(s string) (DN, error) {
	d, err := Parse(s)
	if err != nil {
		return DN{}, err
	}
	if d.IsRoot() {
		return DN{}, fmt.Errorf("%w: %q: empty distinguished name", ErrMalformed, s)
	}
	return d, nil
}

// ParseRDN parses a single relative distinguished name.
func ParseRDN(s string) (RDN, error) {
	d, err := Parse(s)
	if err != nil {
		return RDN{}, err
	}
	if len(d.RDNs) != 1 {
		return RDN{}, fmt.Errorf("%w: %q: expected exactly one relative name", ErrMalformed, s)
	}
	return d.RDNs[0], nil
}

// Normalize returns the case-folded rendering of s.
func Normalize(s string) (string, error) {
	d, err := Parse(s)
	if err != nil {
		return "", err
	}
	return d.Normalize(), nil
}

// Join builds rdn,parent.
func Join(rdn RDN, parent DN) DN {
	rdns := make([]RDN, 0, len(parent.RDNs)+1)
	rdns = append(rdns, rdn)
	rdns = append(rdns, parent.RDNs...)
	return DN{RDNs: rdns}
}

// IsRoot reports whether d has no components.
func (d DN) IsRoot() bool {
	return len(d.RDNs) == 0
}

// Depth is the number of RDNs in d.
func (d DN) Depth() int {
	return len(d.RDNs)
}

// RDN returns the leaf component. It is the zero RDN for the root DN.
func (d DN) RDN() RDN {
	if d.IsRoot() {
		return RDN{}
	}
	return d.RDNs[0]
}

// Parent drops the leaf component. The parent of a top-level entry is the
// root DN.
func (d DN) Parent() DN {
	if len(d.RDNs) <= 1 {
		return DN{}
	}
	return DN{RDNs: d.RDNs[1:]}
}

// String renders d case-preserving, without spaces between components.
func (d DN) String() string {
	parts := make([]string, len(d.RDNs))
	for i, rdn := range d.RDNs {
		parts[i] = rdn.String()
	}
	return strings.Join(parts, ",")
}

// Normalize renders d case-folded with multi-valued RDNs sorted by type.
func (d DN) Normalize() string {
	parts := make([]string, len(d.RDNs))
	for i, rdn := range d.RDNs {
		parts[i] = rdn.Normalize()
	}
	return strings.Join(parts, ",")
}

// Equal compares two DNs case-insensitively.
func (d DN) Equal(other DN) bool {
	return d.Normalize() == other.Normalize()
}

// IsDescendantOf reports whether d lies strictly below base.
func (d DN) IsDescendantOf(base DN) bool {
	if len(d.RDNs) <= len(base.RDNs) {
		return false
	}
	offset := len(d.RDNs) - len(base.RDNs)
	for i, rdn := range base.RDNs {
		if rdn.Normalize() != d.RDNs[offset+i].Normalize() {
			return false
		}
	}
	return true
}

// Rebase replaces the oldBase suffix of d with newBase. d must be oldBase or
// one of its descendants.
func (d DN) Rebase(oldBase, newBase DN) (DN, error) {
	if d.Equal(oldBase) {
		return newBase, nil
	}
	if !d.IsDescendantOf(oldBase) {
		return DN{}, fmt.Errorf("%w: %q is not below %q", ErrMalformed, d.String(), oldBase.String())
	}
	keep := len(d.RDNs) - len(oldBase.RDNs)
	rdns := make([]RDN, 0, keep+len(newBase.RDNs))
	rdns = append(rdns, d.RDNs[:keep]...)
	rdns = append(rdns, newBase.RDNs...)
	return DN{RDNs: rdns}, nil
}

// String renders the RDN case-preserving.
func (r RDN) String() string {
	parts := make([]string, len(r.AVAs))
	for i, ava := range r.AVAs {
		parts[i] = ava.Type + "=" + escapeValue(ava.Value)
	}
	return strings.Join(parts, "+")
}

// Normalize renders the RDN case-folded, AVAs sorted by type.
func (r RDN) Normalize() string {
	parts := make([]string, len(r.AVAs))
	for i, ava := range r.AVAs {
		parts[i] = strings.ToLower(ava.Type) + "=" + escapeValue(strings.ToLower(ava.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

// Single returns the only AVA of a single-valued RDN.
func (r RDN) Single() (AVA, bool) {
	if len(r.AVAs) != 1 {
		return AVA{}, false
	}
	return r.AVAs[0], true
}

// escapeValue applies the RFC 4514 string representation rules.
func escapeValue(value string) string {
	if value == "" {
		return ""
	}

	var b strings.Builder
	last := len(value) - 1
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == ',' || c == '+' || c == '"' || c == '\\' || c == '<' || c == '>' || c == ';' || c == '=':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == 0:
			b.WriteString(`\00`)
		case i == 0 && (c == ' ' || c == '#'):
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == last && c == ' ':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
