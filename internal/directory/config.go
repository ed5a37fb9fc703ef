package directory

import "github.com/choplin/dirsim/internal/filter"

// VirtualAttribute pairs a forward attribute written by callers with the
// reverse attribute maintained on the referenced objects. Both hold DNs.
type VirtualAttribute struct {
	Forward string
	Reverse string
	// RewriteOnRename rewrites stored forward and reverse values when a
	// referenced object is renamed. Without it references go stale.
	RewriteOnRename bool
}

// Config is the per-directory engine configuration.
type Config struct {
	// StructuralAttributes must carry at least one value on insert. Empty
	// disables the check.
	StructuralAttributes []string
	// GUIDAttribute lets callers supply the GUID of a new entry.
	GUIDAttribute string
	VirtualAttributes []VirtualAttribute
	// ReferenceAttributes hold DNs that are rewritten on rename but have no
	// reverse side.
	ReferenceAttributes []string
	// ANRAttributes are searched by ambiguous name resolution.
	ANRAttributes []string
}

// DefaultConfig mirrors the Active Directory conventions of the emulated
// server.
func DefaultConfig() Config {
	return Config{
		StructuralAttributes: []string{"objectclass"},
		GUIDAttribute:        "objectguid",
		VirtualAttributes: []VirtualAttribute{
			{Forward: "member", Reverse: "memberof", RewriteOnRename: true},
		},
		ANRAttributes: []string{"cn", "sn", "givenname", "displayname", "samaccountname", "mail", "name"},
	}
}

// dnValued returns the folded names of every attribute whose values are DNs.
func (c Config) dnValued() map[string]struct{} {
	names := make(map[string]struct{})
	for _, v := range c.VirtualAttributes {
		names[filter.FoldName(v.Forward)] = struct{}{}
		names[filter.FoldName(v.Reverse)] = struct{}{}
	}
	for _, name := range c.ReferenceAttributes {
		names[filter.FoldName(name)] = struct{}{}
	}
	return names
}
