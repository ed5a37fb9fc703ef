package dn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndRender(t *testing.T) {
	d, err := Parse("CN=John Smith, OU=People,DC=Local")
	require.NoError(t, err)

	assert.Equal(t, 3, d.Depth())
	assert.Equal(t, "CN=John Smith,OU=People,DC=Local", d.String())
	assert.Equal(t, "cn=john smith,ou=people,dc=local", d.Normalize())
	assert.Equal(t, "OU=People,DC=Local", d.Parent().String())
	assert.Equal(t, "CN=John Smith", d.RDN().String())
}

func TestParseEscapedValues(t *testing.T) {
	d, err := Parse(`cn=Smith\, John,dc=local`)
	require.NoError(t, err)

	ava, ok := d.RDN().Single()
	require.True(t, ok)
	assert.Equal(t, "Smith, John", ava.Value)
	assert.Equal(t, `cn=Smith\, John,dc=local`, d.String())
}

func TestMultiValuedRDNNormalisesOrder(t *testing.T) {
	a, err := Parse("uid=jsmith+cn=John,dc=local")
	require.NoError(t, err)
	b, err := Parse("CN=john+UID=JSMITH,dc=local")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	_, ok := a.RDN().Single()
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"cn", "cn=a,,dc=local", "=a", `cn=a\`} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err := ParseEntry("")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseRDN("cn=a,dc=b")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRootDN(t *testing.T) {
	d, err := Parse("")
	require.NoError(t, err)
	assert.True(t, d.IsRoot())
	assert.Equal(t, "", d.Normalize())

	top, err := Parse("dc=local")
	require.NoError(t, err)
	assert.True(t, top.Parent().IsRoot())
	assert.True(t, top.IsDescendantOf(d))
}

func TestDescendantAndRebase(t *testing.T) {
	base, _ := Parse("ou=People,dc=local")
	child, _ := Parse("cn=a,ou=people,dc=local")
	lookalike, _ := Parse("cn=a,ou=xpeople,dc=local")

	assert.True(t, child.IsDescendantOf(base))
	assert.False(t, base.IsDescendantOf(base))
	assert.False(t, lookalike.IsDescendantOf(base))

	newBase, _ := Parse("ou=Staff,dc=local")
	moved, err := child.Rebase(base, newBase)
	require.NoError(t, err)
	assert.Equal(t, "cn=a,ou=Staff,dc=local", moved.String())

	_, err = lookalike.Rebase(base, newBase)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJoin(t *testing.T) {
	rdn, err := ParseRDN("cn=New")
	require.NoError(t, err)
	parent, _ := Parse("dc=local")

	assert.Equal(t, "cn=New,dc=local", Join(rdn, parent).String())
	assert.Equal(t, "cn=New", Join(rdn, DN{}).String())
}

func TestEscapeValue(t *testing.T) {
	assert.Equal(t, `\#hash`, escapeValue("#hash"))
	assert.Equal(t, `\ lead`, escapeValue(" lead"))
	assert.Equal(t, `trail\ `, escapeValue("trail "))
	assert.Equal(t, `a\+b\=c`, escapeValue("a+b=c"))
}
