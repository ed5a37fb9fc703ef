package scope

// ScopeOptions contains options for resolving a scope from CLI/MCP input
//
//nolint:revive // ScopeOptions is intentionally prefixed for clarity in external contexts
type ScopeOptions struct {
	Type string
	Base string
}

// ResolveScope converts CLI/MCP-level scope options into a validated Scope.
// If no scope type is specified, it defaults to a subtree search.
func ResolveScope(opts ScopeOptions) (Scope, error) {
	scopeType, err := ParseScopeType(opts.Type)
	if err != nil {
		return Scope{}, err
	}

	s := Scope{Type: scopeType, BaseDN: opts.Base}
	return s, Validate(s)
}
