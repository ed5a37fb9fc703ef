// Package filter holds the directory filter AST and its translation into
// relational predicates.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrAmbiguousComposition reports a structurally invalid filter: an empty
	// group, a NOT without an operand, a leaf without an attribute name, or
	// text that does not parse.
	ErrAmbiguousComposition = errors.New("ambiguous filter composition")
	// ErrUnsupported reports a filter form the translator does not handle.
	ErrUnsupported = errors.New("unsupported filter")
)

// Kind enumerates filter node types.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNot
	KindPresent
	KindAbsent
	KindEquals
	KindNotEquals
	KindSubstring
	KindGreaterOrEqual
	KindLessOrEqual
	KindBetween
	KindIn
	KindApprox
	KindANR
)

var kindNames = map[Kind]string{
	KindAnd:            "and",
	KindOr:             "or",
	KindNot:            "not",
	KindPresent:        "present",
	KindAbsent:         "absent",
	KindEquals:         "equals",
	KindNotEquals:      "not-equals",
	KindSubstring:      "substring",
	KindGreaterOrEqual: "greater-or-equal",
	KindLessOrEqual:    "less-or-equal",
	KindBetween:        "between",
	KindIn:             "in",
	KindApprox:         "approx",
	KindANR:            "anr",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Position selects where a substring fragment is anchored.
type Position int

const (
	Contains Position = iota
	StartsWith
	EndsWith
)

// Substring is an RFC 4515 substring assertion. Empty components are
// ignored; a substring with no components at all matches presence.
type Substring struct {
	Initial string
	Any     []string
	Final   string
}

// IsEmpty reports whether no component constrains the value.
func (s Substring) IsEmpty() bool {
	if s.Initial != "" || s.Final != "" {
		return false
	}
	for _, part := range s.Any {
		if part != "" {
			return false
		}
	}
	return true
}

// Filter is one node of a filter tree. Which fields are meaningful depends
// on Kind.
type Filter struct {
	Kind      Kind
	Attribute string
	Value     string
	Values    []string
	Low       string
	High      string
	Substring Substring
	Children  []*Filter
}

// And matches entries satisfying every child.
func And(children ...*Filter) *Filter {
	return &Filter{Kind: KindAnd, Children: children}
}

// Or matches entries satisfying at least one child.
func Or(children ...*Filter) *Filter {
	return &Filter{Kind: KindOr, Children: children}
}

// Not negates child.
func Not(child *Filter) *Filter {
	return &Filter{Kind: KindNot, Children: []*Filter{child}}
}

// Present matches entries carrying at least one value of attribute.
func Present(attribute string) *Filter {
	return &Filter{Kind: KindPresent, Attribute: attribute}
}

// Absent matches entries carrying no value of attribute.
func Absent(attribute string) *Filter {
	return &Filter{Kind: KindAbsent, Attribute: attribute}
}

// Equals matches entries where some value of attribute equals value,
// case-insensitively.
func Equals(attribute, value string) *Filter {
	return &Filter{Kind: KindEquals, Attribute: attribute, Value: value}
}

// NotEquals matches entries where no value of attribute equals value. Entries
// without the attribute match.
func NotEquals(attribute, value string) *Filter {
	return &Filter{Kind: KindNotEquals, Attribute: attribute, Value: value}
}

// Substr builds a single-fragment substring assertion.
func Substr(attribute, fragment string, position Position) *Filter {
	s := Substring{}
	switch position {
	case StartsWith:
		s.Initial = fragment
	case EndsWith:
		s.Final = fragment
	default:
		s.Any = []string{fragment}
	}
	return &Filter{Kind: KindSubstring, Attribute: attribute, Substring: s}
}

// ContainsValue matches values containing fragment.
func ContainsValue(attribute, fragment string) *Filter {
	return Substr(attribute, fragment, Contains)
}

// HasPrefix matches values starting with fragment.
func HasPrefix(attribute, fragment string) *Filter {
	return Substr(attribute, fragment, StartsWith)
}

// HasSuffix matches values ending with fragment.
func HasSuffix(attribute, fragment string) *Filter {
	return Substr(attribute, fragment, EndsWith)
}

// Substrings builds a general initial/any/final assertion.
func Substrings(attribute string, s Substring) *Filter {
	return &Filter{Kind: KindSubstring, Attribute: attribute, Substring: s}
}

// GreaterOrEqual compares numerically when the value is numeric and as text
// otherwise.
func GreaterOrEqual(attribute, value string) *Filter {
	return &Filter{Kind: KindGreaterOrEqual, Attribute: attribute, Value: value}
}

// LessOrEqual is the mirror of GreaterOrEqual.
func LessOrEqual(attribute, value string) *Filter {
	return &Filter{Kind: KindLessOrEqual, Attribute: attribute, Value: value}
}

// Between is inclusive on both bounds.
func Between(attribute, low, high string) *Filter {
	return &Filter{Kind: KindBetween, Attribute: attribute, Low: low, High: high}
}

// In matches entries with a value equal to any of values.
func In(attribute string, values ...string) *Filter {
	return &Filter{Kind: KindIn, Attribute: attribute, Values: values}
}

// Approx matches values that contain the assertion once case and runs of
// whitespace are folded.
func Approx(attribute, value string) *Filter {
	return &Filter{Kind: KindApprox, Attribute: attribute, Value: value}
}

// ANR is ambiguous name resolution: the token is matched against the
// configured naming attributes.
func ANR(token string) *Filter {
	return &Filter{Kind: KindANR, Value: token}
}

// Validate checks the tree for structural problems.
func Validate(f *Filter) error {
	if f == nil {
		return fmt.Errorf("%w: missing filter node", ErrAmbiguousComposition)
	}

	switch f.Kind {
	case KindAnd, KindOr:
		if len(f.Children) == 0 {
			return fmt.Errorf("%w: empty %s group", ErrAmbiguousComposition, f.Kind)
		}
		for _, child := range f.Children {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	case KindNot:
		if len(f.Children) != 1 || f.Children[0] == nil {
			return fmt.Errorf("%w: not requires exactly one operand", ErrAmbiguousComposition)
		}
		return Validate(f.Children[0])
	case KindANR:
		return nil
	case KindPresent, KindAbsent, KindEquals, KindNotEquals, KindSubstring,
		KindGreaterOrEqual, KindLessOrEqual, KindBetween, KindApprox:
	case KindIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("%w: empty value list for %q", ErrAmbiguousComposition, f.Attribute)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, f.Kind)
	}

	if strings.TrimSpace(f.Attribute) == "" {
		return fmt.Errorf("%w: %s without attribute", ErrAmbiguousComposition, f.Kind)
	}
	return nil
}

// String renders f as an RFC 4515 string. Sugar nodes are rendered in their
// expanded form; ANR uses the (anr=token) convention.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}

	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Filter) write(b *strings.Builder) {
	switch f.Kind {
	case KindAnd, KindOr:
		b.WriteString("(")
		if f.Kind == KindAnd {
			b.WriteString("&")
		} else {
			b.WriteString("|")
		}
		for _, child := range f.Children {
			if child != nil {
				child.write(b)
			}
		}
		b.WriteString(")")
	case KindNot:
		b.WriteString("(!")
		if len(f.Children) > 0 && f.Children[0] != nil {
			f.Children[0].write(b)
		}
		b.WriteString(")")
	case KindPresent:
		fmt.Fprintf(b, "(%s=*)", f.Attribute)
	case KindAbsent:
		fmt.Fprintf(b, "(!(%s=*))", f.Attribute)
	case KindEquals:
		fmt.Fprintf(b, "(%s=%s)", f.Attribute, ldap.EscapeFilter(f.Value))
	case KindNotEquals:
		fmt.Fprintf(b, "(!(%s=%s))", f.Attribute, ldap.EscapeFilter(f.Value))
	case KindSubstring:
		fmt.Fprintf(b, "(%s=%s)", f.Attribute, f.Substring.pattern())
	case KindGreaterOrEqual:
		fmt.Fprintf(b, "(%s>=%s)", f.Attribute, ldap.EscapeFilter(f.Value))
	case KindLessOrEqual:
		fmt.Fprintf(b, "(%s<=%s)", f.Attribute, ldap.EscapeFilter(f.Value))
	case KindBetween:
		fmt.Fprintf(b, "(&(%s>=%s)(%s<=%s))", f.Attribute, ldap.EscapeFilter(f.Low), f.Attribute, ldap.EscapeFilter(f.High))
	case KindIn:
		b.WriteString("(|")
		for _, v := range f.Values {
			fmt.Fprintf(b, "(%s=%s)", f.Attribute, ldap.EscapeFilter(v))
		}
		b.WriteString(")")
	case KindApprox:
		fmt.Fprintf(b, "(%s~=%s)", f.Attribute, ldap.EscapeFilter(f.Value))
	case KindANR:
		fmt.Fprintf(b, "(anr=%s)", ldap.EscapeFilter(f.Value))
	}
}

func (s Substring) pattern() string {
	if s.IsEmpty() {
		return "*"
	}
	var b strings.Builder
	b.WriteString(ldap.EscapeFilter(s.Initial))
	b.WriteString("*")
	for _, part := range s.Any {
		if part == "" {
			continue
		}
		b.WriteString(ldap.EscapeFilter(part))
		b.WriteString("*")
	}
	b.WriteString(ldap.EscapeFilter(s.Final))
	return b.String()
}
