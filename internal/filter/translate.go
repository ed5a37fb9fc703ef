package filter

import (
	"fmt"
	"strings"
)

// Predicate is a SQL boolean expression with positional arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// IsEmpty reports whether the predicate places no constraint.
func (p Predicate) IsEmpty() bool {
	return p.SQL == ""
}

// Storage renders the storage-specific parts of a predicate. Conditions
// passed to HasValue refer to the value columns named by TextColumn and
// NumberColumn.
type Storage interface {
	// HasValue holds when the current object carries a value of attribute
	// satisfying cond. An empty cond means any value.
	HasValue(attribute string, cond Predicate) Predicate
	TextColumn() string
	NumberColumn() string
}

// Folder computes the matching key for a value of the named attribute.
type Folder func(attribute, value string) string

// Options tunes translation.
type Options struct {
	// ANRAttributes are the attributes searched by ANR nodes.
	ANRAttributes []string
	// Fold overrides FoldValue, e.g. to normalise DN-valued attributes.
	Fold Folder
}

// Compile validates f, expands sugar nodes and renders the predicate. A nil
// filter compiles to the empty predicate.
func Compile(f *Filter, storage Storage, opts Options) (Predicate, error) {
	if f == nil {
		return Predicate{}, nil
	}
	if err := Validate(f); err != nil {
		return Predicate{}, err
	}
	expanded, err := Expand(f, opts.ANRAttributes)
	if err != nil {
		return Predicate{}, err
	}

	fold := opts.Fold
	if fold == nil {
		fold = func(_, value string) string { return FoldValue(value) }
	}
	t := translator{storage: storage, fold: fold}
	return t.translate(expanded)
}

// Expand rewrites ANR, Between and In nodes into the core node set.
func Expand(f *Filter, anrAttributes []string) (*Filter, error) {
	switch f.Kind {
	case KindAnd, KindOr, KindNot:
		children := make([]*Filter, len(f.Children))
		for i, child := range f.Children {
			expanded, err := Expand(child, anrAttributes)
			if err != nil {
				return nil, err
			}
			children[i] = expanded
		}
		return &Filter{Kind: f.Kind, Children: children}, nil
	case KindANR:
		if len(anrAttributes) == 0 {
			return nil, fmt.Errorf("%w: no attributes configured for ambiguous name resolution", ErrAmbiguousComposition)
		}
		alternatives := make([]*Filter, 0, len(anrAttributes)*2)
		for _, attr := range anrAttributes {
			alternatives = append(alternatives, Equals(attr, f.Value), HasPrefix(attr, f.Value))
		}
		return Or(alternatives...), nil
	case KindBetween:
		return And(GreaterOrEqual(f.Attribute, f.Low), LessOrEqual(f.Attribute, f.High)), nil
	case KindIn:
		alternatives := make([]*Filter, len(f.Values))
		for i, v := range f.Values {
			alternatives[i] = Equals(f.Attribute, v)
		}
		return Or(alternatives...), nil
	case KindSubstring:
		if f.Substring.IsEmpty() {
			return Present(f.Attribute), nil
		}
	}
	return f, nil
}

type translator struct {
	storage Storage
	fold    Folder
}

func (t translator) translate(f *Filter) (Predicate, error) {
	switch f.Kind {
	case KindAnd, KindOr:
		joiner := " AND "
		if f.Kind == KindOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(f.Children))
		var args []any
		for _, child := range f.Children {
			p, err := t.translate(child)
			if err != nil {
				return Predicate{}, err
			}
			parts = append(parts, p.SQL)
			args = append(args, p.Args...)
		}
		return Predicate{SQL: "(" + strings.Join(parts, joiner) + ")", Args: args}, nil

	case KindNot:
		p, err := t.translate(f.Children[0])
		if err != nil {
			return Predicate{}, err
		}
		return negate(p), nil

	case KindPresent:
		return t.storage.HasValue(f.Attribute, Predicate{}), nil

	case KindAbsent:
		return negate(t.storage.HasValue(f.Attribute, Predicate{})), nil

	case KindEquals:
		return t.storage.HasValue(f.Attribute, t.equals(f)), nil

	case KindNotEquals:
		return negate(t.storage.HasValue(f.Attribute, t.equals(f))), nil

	case KindSubstring:
		return t.storage.HasValue(f.Attribute, t.like(f.Substring)), nil

	case KindGreaterOrEqual:
		return t.storage.HasValue(f.Attribute, t.compare(f.Attribute, ">=", f.Value)), nil

	case KindLessOrEqual:
		return t.storage.HasValue(f.Attribute, t.compare(f.Attribute, "<=", f.Value)), nil

	case KindApprox:
		cond := Predicate{
			SQL:  t.storage.TextColumn() + ` LIKE ? ESCAPE '\'`,
			Args: []any{"%" + escapeLike(t.fold(f.Attribute, f.Value)) + "%"},
		}
		return t.storage.HasValue(f.Attribute, cond), nil
	}

	return Predicate{}, fmt.Errorf("%w: %s", ErrUnsupported, f.Kind)
}

func (t translator) equals(f *Filter) Predicate {
	return Predicate{
		SQL:  t.storage.TextColumn() + " = ?",
		Args: []any{t.fold(f.Attribute, f.Value)},
	}
}

func (t translator) like(s Substring) Predicate {
	var b strings.Builder
	b.WriteString(escapeLike(FoldFragment(s.Initial)))
	b.WriteString("%")
	for _, part := range s.Any {
		folded := FoldFragment(part)
		if folded == "" {
			continue
		}
		b.WriteString(escapeLike(folded))
		b.WriteString("%")
	}
	b.WriteString(escapeLike(FoldFragment(s.Final)))

	return Predicate{
		SQL:  t.storage.TextColumn() + ` LIKE ? ESCAPE '\'`,
		Args: []any{b.String()},
	}
}

// compare is numeric when both the stored value and the assertion are
// numeric, and a text comparison of folded values otherwise.
func (t translator) compare(attribute, op, value string) Predicate {
	text := t.storage.TextColumn()
	folded := t.fold(attribute, value)
	n, ok := NumericValue(value)
	if !ok {
		return Predicate{SQL: fmt.Sprintf("%s %s ?", text, op), Args: []any{folded}}
	}

	num := t.storage.NumberColumn()
	return Predicate{
		SQL:  fmt.Sprintf("((%s IS NOT NULL AND %s %s ?) OR (%s IS NULL AND %s %s ?))", num, num, op, num, text, op),
		Args: []any{n, folded},
	}
}

func negate(p Predicate) Predicate {
	return Predicate{SQL: "NOT (" + p.SQL + ")", Args: p.Args}
}
