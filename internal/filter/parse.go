package filter

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// anrAttribute is the pseudo attribute that selects ambiguous name
// resolution in textual filters.
const anrAttribute = "anr"

// Parse reads an RFC 4515 filter string. Negated equality and presence are
// folded into NotEquals and Absent; (anr=token) becomes an ANR node.
func Parse(text string) (*Filter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty filter", ErrAmbiguousComposition)
	}
	if !strings.HasPrefix(text, "(") {
		text = "(" + text + ")"
	}

	packet, err := ldap.CompileFilter(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrAmbiguousComposition, text, err)
	}

	f, err := fromPacket(packet)
	if err != nil {
		return nil, err
	}
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

// MustParse is Parse for filters known to be valid.
func MustParse(text string) *Filter {
	f, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return f
}

func fromPacket(p *ber.Packet) (*Filter, error) {
	switch p.Tag {
	case ldap.FilterAnd, ldap.FilterOr:
		children := make([]*Filter, 0, len(p.Children))
		for _, c := range p.Children {
			child, err := fromPacket(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if p.Tag == ldap.FilterAnd {
			return And(children...), nil
		}
		return Or(children...), nil

	case ldap.FilterNot:
		if len(p.Children) != 1 {
			return nil, fmt.Errorf("%w: not requires exactly one operand", ErrAmbiguousComposition)
		}
		child, err := fromPacket(p.Children[0])
		if err != nil {
			return nil, err
		}
		switch child.Kind {
		case KindEquals:
			return NotEquals(child.Attribute, child.Value), nil
		case KindPresent:
			return Absent(child.Attribute), nil
		}
		return Not(child), nil

	case ldap.FilterPresent:
		return Present(packetString(p)), nil

	case ldap.FilterEqualityMatch, ldap.FilterGreaterOrEqual, ldap.FilterLessOrEqual, ldap.FilterApproxMatch:
		if len(p.Children) != 2 {
			return nil, fmt.Errorf("%w: malformed assertion", ErrAmbiguousComposition)
		}
		attr := packetString(p.Children[0])
		value := packetString(p.Children[1])
		switch p.Tag {
		case ldap.FilterGreaterOrEqual:
			return GreaterOrEqual(attr, value), nil
		case ldap.FilterLessOrEqual:
			return LessOrEqual(attr, value), nil
		case ldap.FilterApproxMatch:
			return Approx(attr, value), nil
		}
		if strings.EqualFold(attr, anrAttribute) {
			return ANR(value), nil
		}
		return Equals(attr, value), nil

	case ldap.FilterSubstrings:
		if len(p.Children) != 2 {
			return nil, fmt.Errorf("%w: malformed substring assertion", ErrAmbiguousComposition)
		}
		attr := packetString(p.Children[0])
		s := Substring{}
		for _, part := range p.Children[1].Children {
			switch part.Tag {
			case ldap.FilterSubstringsInitial:
				s.Initial = packetString(part)
			case ldap.FilterSubstringsAny:
				s.Any = append(s.Any, packetString(part))
			case ldap.FilterSubstringsFinal:
				s.Final = packetString(part)
			}
		}
		if strings.EqualFold(attr, anrAttribute) && s.Any == nil && s.Final == "" {
			return ANR(s.Initial), nil
		}
		return Substrings(attr, s), nil

	case ldap.FilterExtensibleMatch:
		return nil, fmt.Errorf("%w: extensible match", ErrUnsupported)
	}

	return nil, fmt.Errorf("%w: filter tag %d", ErrUnsupported, p.Tag)
}

func packetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	if p.Data != nil {
		return p.Data.String()
	}
	return ""
}
