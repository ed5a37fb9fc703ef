package filter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct{}

func (fakeStorage) HasValue(attribute string, cond Predicate) Predicate {
	if cond.IsEmpty() {
		return Predicate{SQL: fmt.Sprintf("has(%s)", FoldName(attribute))}
	}
	return Predicate{SQL: fmt.Sprintf("has(%s, %s)", FoldName(attribute), cond.SQL), Args: cond.Args}
}

func (fakeStorage) TextColumn() string   { return "text" }
func (fakeStorage) NumberColumn() string { return "num" }

func compile(t *testing.T, f *Filter, opts Options) Predicate {
	t.Helper()
	p, err := Compile(f, fakeStorage{}, opts)
	require.NoError(t, err)
	return p
}

func TestCompileLeaves(t *testing.T) {
	tests := []struct {
		name string
		f    *Filter
		sql  string
		args []any
	}{
		{"present", Present("Mail"), "has(mail)", nil},
		{"absent", Absent("mail"), "NOT (has(mail))", nil},
		{"equals folds value", Equals("cn", "  John   SMITH "), "has(cn, text = ?)", []any{"john smith"}},
		{"not equals", NotEquals("cn", "x"), "NOT (has(cn, text = ?))", []any{"x"}},
		{"starts with", HasPrefix("cn", "Jo"), `has(cn, text LIKE ? ESCAPE '\')`, []any{"jo%"}},
		{"starts with keeps trailing space", HasPrefix("cn", "John  "), `has(cn, text LIKE ? ESCAPE '\')`, []any{"john %"}},
		{"ends with", HasSuffix("cn", "son"), `has(cn, text LIKE ? ESCAPE '\')`, []any{"%son"}},
		{"contains escapes wildcards", ContainsValue("cn", "50%_off"), `has(cn, text LIKE ? ESCAPE '\')`, []any{`%50\%\_off%`}},
		{"general substring", Substrings("cn", Substring{Initial: "a", Any: []string{"b", "", "c"}, Final: "d"}), `has(cn, text LIKE ? ESCAPE '\')`, []any{"a%b%c%d"}},
		{"empty substring is presence", ContainsValue("cn", ""), "has(cn)", nil},
		{"text compare", GreaterOrEqual("sn", "M"), "has(sn, text >= ?)", []any{"m"}},
		{
			"numeric compare",
			LessOrEqual("uidNumber", "1000"),
			"has(uidnumber, ((num IS NOT NULL AND num <= ?) OR (num IS NULL AND text <= ?)))",
			[]any{float64(1000), "1000"},
		},
		{"approx", Approx("cn", "John  Smith"), `has(cn, text LIKE ? ESCAPE '\')`, []any{"%john smith%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compile(t, tt.f, Options{})
			assert.Equal(t, tt.sql, p.SQL)
			assert.Equal(t, tt.args, p.Args)
		})
	}
}

func TestCompileGroupsAreParenthesised(t *testing.T) {
	f := Or(And(Equals("a", "1"), Equals("b", "2")), Not(Present("c")))

	p := compile(t, f, Options{})

	assert.Equal(t, "((has(a, text = ?) AND has(b, text = ?)) OR NOT (has(c)))", p.SQL)
	assert.Equal(t, []any{"1", "2"}, p.Args)
}

func TestCompileSugar(t *testing.T) {
	between := compile(t, Between("age", "10", "20"), Options{})
	assert.Contains(t, between.SQL, " AND ")
	assert.Equal(t, []any{float64(10), "10", float64(20), "20"}, between.Args)

	in := compile(t, In("cn", "a", "b"), Options{})
	assert.Equal(t, "(has(cn, text = ?) OR has(cn, text = ?))", in.SQL)

	anr := compile(t, ANR("jo"), Options{ANRAttributes: []string{"cn", "mail"}})
	assert.Equal(t, []any{"jo", "jo%", "jo", "jo%"}, anr.Args)
}

func TestCompileNilFilterMatchesEverything(t *testing.T) {
	p := compile(t, nil, Options{})
	assert.True(t, p.IsEmpty())
}

func TestCompileUsesCustomFolder(t *testing.T) {
	opts := Options{Fold: func(attribute, value string) string { return attribute + ":" + value }}
	p := compile(t, Equals("member", "X"), opts)
	assert.Equal(t, []any{"member:X"}, p.Args)
}

func TestCompileRejectsAmbiguousComposition(t *testing.T) {
	tests := []struct {
		name string
		f    *Filter
	}{
		{"empty and", And()},
		{"empty or", Or()},
		{"nested empty group", And(Equals("a", "b"), Or())},
		{"not without operand", &Filter{Kind: KindNot}},
		{"nil child", Not(nil)},
		{"leaf without attribute", Equals("", "x")},
		{"empty in", In("cn")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.f, fakeStorage{}, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAmbiguousComposition))
		})
	}

	_, err := Compile(ANR("x"), fakeStorage{}, Options{})
	assert.ErrorIs(t, err, ErrAmbiguousComposition)
}

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want *Filter
	}{
		{"(cn=John)", Equals("cn", "John")},
		{"cn=John", Equals("cn", "John")},
		{"(mail=*)", Present("mail")},
		{"(!(mail=*))", Absent("mail")},
		{"(!(cn=x))", NotEquals("cn", "x")},
		{"(!(&(a=1)(b=2)))", Not(And(Equals("a", "1"), Equals("b", "2")))},
		{"(cn=Jo*)", HasPrefix("cn", "Jo")},
		{"(cn=*son)", HasSuffix("cn", "son")},
		{"(cn=*oh*)", ContainsValue("cn", "oh")},
		{"(cn=a*b*c)", Substrings("cn", Substring{Initial: "a", Any: []string{"b"}, Final: "c"})},
		{"(uidNumber>=10)", GreaterOrEqual("uidNumber", "10")},
		{"(uidNumber<=10)", LessOrEqual("uidNumber", "10")},
		{"(cn~=john)", Approx("cn", "john")},
		{"(anr=smi)", ANR("smi")},
		{"(cn=a\\2ab)", Equals("cn", "a*b")},
		{"(|(a=1)(&(b=2)(c=3)))", Or(Equals("a", "1"), And(Equals("b", "2"), Equals("c", "3")))},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrAmbiguousComposition)

	_, err = Parse("(cn=John")
	assert.ErrorIs(t, err, ErrAmbiguousComposition)

	_, err = Parse("(cn:caseExactMatch:=John)")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStringRoundTrip(t *testing.T) {
	for _, text := range []string{
		"(&(objectClass=person)(|(cn=Jo*)(mail=*@example.com)))",
		"(!(cn=x))",
		"(!(mail=*))",
		"(cn=a*b*c)",
		"(uidNumber>=10)",
		"(cn~=john)",
		"(anr=smi)",
		"(cn=a\\2ab)",
	} {
		t.Run(text, func(t *testing.T) {
			f, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, text, f.String())
		})
	}

	assert.Equal(t, "(&(age>=1)(age<=5))", Between("age", "1", "5").String())
	assert.Equal(t, "(|(cn=a)(cn=b))", In("cn", "a", "b").String())
}

func TestFoldValueAndNumbers(t *testing.T) {
	assert.Equal(t, "a b c", FoldValue("  A \t B\nc "))
	assert.Equal(t, "", FoldValue("   "))
	assert.Equal(t, " a b ", FoldFragment("\tA  \n B "))
	assert.Equal(t, "john ", FoldFragment("John   "))
	assert.Equal(t, "", FoldFragment(""))

	n, ok := NumericValue(" 42.5 ")
	assert.True(t, ok)
	assert.Equal(t, 42.5, n)

	for _, v := range []string{"", "abc", "NaN", "Inf", "12abc"} {
		_, ok := NumericValue(v)
		assert.False(t, ok, v)
	}
}
