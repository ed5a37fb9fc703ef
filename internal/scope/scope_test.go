package scope

import (
	"errors"
	"testing"

	"github.com/choplin/dirsim/internal/dn"
)

func TestValidateScopes(t *testing.T) {
	cases := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"read", NewRead("cn=a,dc=local"), false},
		{"listing", NewListing("dc=local"), false},
		{"search", NewSearch("dc=local"), false},
		{"search root", NewSearch(""), false},
		{"listing root", NewListing(""), false},
		{"read root", NewRead(""), true},
		{"malformed base", NewSearch("not a dn"), true},
		{"unknown type", Scope{Type: "sideways", BaseDN: "dc=local"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.scope)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error but got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateMalformedBaseIsMalformedIdentifier(t *testing.T) {
	err := Validate(NewSearch("cn"))
	if !errors.Is(err, dn.ErrMalformed) {
		t.Fatalf("expected dn.ErrMalformed, got %v", err)
	}
}

func TestFormatScope(t *testing.T) {
	if got, want := FormatScope(NewListing("dc=local")), "listing(dc=local)"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got, want := FormatScope(NewSearch("")), "search(<root>)"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolveScope(t *testing.T) {
	cases := []struct {
		opts ScopeOptions
		want ScopeType
	}{
		{ScopeOptions{Base: "dc=local"}, ScopeSearch},
		{ScopeOptions{Type: "base", Base: "dc=local"}, ScopeRead},
		{ScopeOptions{Type: "one", Base: "dc=local"}, ScopeListing},
		{ScopeOptions{Type: "SUB", Base: "dc=local"}, ScopeSearch},
		{ScopeOptions{Type: "listing", Base: "dc=local"}, ScopeListing},
	}

	for _, tc := range cases {
		got, err := ResolveScope(tc.opts)
		if err != nil {
			t.Fatalf("ResolveScope(%+v) error: %v", tc.opts, err)
		}
		if got.Type != tc.want {
			t.Fatalf("ResolveScope(%+v) = %s, want %s", tc.opts, got.Type, tc.want)
		}
	}

	if _, err := ResolveScope(ScopeOptions{Type: "diagonal"}); err == nil {
		t.Fatalf("expected error for unknown scope type")
	}
}
