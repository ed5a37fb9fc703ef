package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/directory"
	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/registry"
	"github.com/choplin/dirsim/internal/scope"
)

// Server wraps the MCP server with directory tools
type Server struct {
	server      *mcp.Server
	manager     *registry.Manager
	defaultName string
	logger      *zap.Logger
}

// NewServer creates a new MCP server instance. Tools that are not given a
// directory name operate on defaultName.
func NewServer(manager *registry.Manager, defaultName string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "dirsim",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server:      mcpServer,
		manager:     manager,
		defaultName: defaultName,
		logger:      logger,
	}

	// Register tools
	s.registerTools()

	return s
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		_ = s.manager.Close()
	}()
	s.logger.Info("starting MCP server", zap.String("directory", s.defaultName))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_setup",
		Description: "Provision a named directory",
	}, s.handleSetup)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_teardown",
		Description: "Close a named directory and remove its data",
	}, s.handleTeardown)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_search",
		Description: "Search a directory with an LDAP filter",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_get",
		Description: "Read one entry by DN or GUID",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_add",
		Description: "Create an entry",
	}, s.handleAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_modify",
		Description: "Apply a batch of attribute modifications to an entry",
	}, s.handleModify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_rename",
		Description: "Rename or move an entry together with its subtree",
	}, s.handleRename)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "directory_delete",
		Description: "Delete an entry together with its subtree",
	}, s.handleDelete)
}

// Input/Output types for each tool

type SetupInput struct {
	Directory *string `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
}

type SetupOutput struct {
	Message   string `json:"message"`
	Directory string `json:"directory"`
	Entries   int64  `json:"entries"`
}

type TeardownInput struct {
	Directory *string `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
}

type TeardownOutput struct {
	Message string `json:"message"`
}

type SearchInput struct {
	Directory  *string  `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	BaseDN     *string  `json:"baseDn,omitempty" jsonschema:"Search base DN (the root if omitted)"`
	Scope      *string  `json:"scope,omitempty" jsonschema:"One of read, listing or search (default search)"`
	Filter     *string  `json:"filter,omitempty" jsonschema:"RFC 4515 filter such as (&(objectClass=user)(cn=jo*))"`
	Attributes []string `json:"attributes,omitempty" jsonschema:"Attributes to return (all if omitted)"`
	SizeLimit  *int     `json:"sizeLimit,omitempty" jsonschema:"Maximum number of entries"`
	OrderBy    *string  `json:"orderBy,omitempty" jsonschema:"Attribute to sort by"`
	Descending *bool    `json:"descending,omitempty" jsonschema:"Sort in descending order"`
}

type SearchOutput struct {
	Entries []EntryOutput `json:"entries"`
}

type EntryOutput struct {
	DN         string              `json:"dn"`
	GUID       string              `json:"guid"`
	Attributes map[string][]string `json:"attributes"`
	CreatedAt  string              `json:"createdAt"`
	UpdatedAt  string              `json:"updatedAt"`
}

type GetInput struct {
	Directory *string `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	DN        *string `json:"dn,omitempty" jsonschema:"Distinguished name of the entry"`
	GUID      *string `json:"guid,omitempty" jsonschema:"GUID of the entry"`
}

type AddInput struct {
	Directory  *string             `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	DN         string              `json:"dn" jsonschema:"Distinguished name of the new entry"`
	Attributes map[string][]string `json:"attributes" jsonschema:"Attribute values keyed by attribute name"`
}

type AddOutput struct {
	Entry   EntryOutput `json:"entry"`
	Warning string      `json:"warning,omitempty"`
}

type ModificationInput struct {
	Attribute string   `json:"attribute" jsonschema:"Attribute name"`
	Operation string   `json:"operation" jsonschema:"One of add, replace, remove or remove-all"`
	Values    []string `json:"values,omitempty" jsonschema:"Values for the operation"`
}

type ModifyInput struct {
	Directory     *string             `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	DN            string              `json:"dn" jsonschema:"Distinguished name of the entry"`
	Modifications []ModificationInput `json:"modifications" jsonschema:"Modifications applied in order"`
}

type RenameInput struct {
	Directory *string `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	DN        string  `json:"dn" jsonschema:"Distinguished name of the entry"`
	NewRDN    string  `json:"newRdn" jsonschema:"New relative name such as cn=Jane"`
	NewParent *string `json:"newParent,omitempty" jsonschema:"New parent DN (the current parent if omitted)"`
}

type DeleteInput struct {
	Directory *string `json:"directory,omitempty" jsonschema:"Directory name (the server default if omitted)"`
	DN        string  `json:"dn" jsonschema:"Distinguished name of the entry"`
}

// MutationOutput is returned by modify, rename and delete.
type MutationOutput struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// Tool handlers

func (s *Server) handleSetup(ctx context.Context, req *mcp.CallToolRequest, input SetupInput) (*mcp.CallToolResult, SetupOutput, error) {
	name := s.name(input.Directory)
	dir, err := s.manager.Setup(ctx, name)
	if err != nil {
		return nil, SetupOutput{}, err
	}
	n, err := dir.Count(ctx)
	if err != nil {
		return nil, SetupOutput{}, fmt.Errorf("failed to count entries: %w", err)
	}
	return nil, SetupOutput{
		Message:   fmt.Sprintf("Directory '%s' is ready", name),
		Directory: name,
		Entries:   n,
	}, nil
}

func (s *Server) handleTeardown(ctx context.Context, req *mcp.CallToolRequest, input TeardownInput) (*mcp.CallToolResult, TeardownOutput, error) {
	name := s.name(input.Directory)
	if err := s.manager.Teardown(name); err != nil {
		return nil, TeardownOutput{}, err
	}
	return nil, TeardownOutput{Message: fmt.Sprintf("Directory '%s' torn down", name)}, nil
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	sc, err := resolveScopeFromInput(input.Scope, input.BaseDN)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("failed to resolve scope: %w", err)
	}

	q := directory.Query{BaseDN: sc.BaseDN, Scope: sc.Type, Attributes: input.Attributes}
	if input.Filter != nil && *input.Filter != "" {
		if q.Filter, err = filter.Parse(*input.Filter); err != nil {
			return nil, SearchOutput{}, err
		}
	}
	if input.SizeLimit != nil {
		q.SizeLimit = *input.SizeLimit
	}
	if input.OrderBy != nil {
		q.OrderBy = *input.OrderBy
	}
	if input.Descending != nil {
		q.Descending = *input.Descending
	}

	entries, err := dir.Search(ctx, q)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("failed to search: %w", err)
	}

	out := SearchOutput{Entries: make([]EntryOutput, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryOutput(e))
	}
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, req *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, EntryOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, EntryOutput{}, err
	}

	var entry *directory.Entry
	switch {
	case input.DN != nil && *input.DN != "":
		entry, err = dir.FindByDN(ctx, *input.DN)
	case input.GUID != nil && *input.GUID != "":
		entry, err = dir.FindByGUID(ctx, *input.GUID)
	default:
		return nil, EntryOutput{}, errors.New("either dn or guid is required")
	}
	if err != nil {
		return nil, EntryOutput{}, fmt.Errorf("failed to get entry: %w", err)
	}
	if entry == nil {
		return nil, EntryOutput{}, errors.New("entry not found")
	}
	return nil, entryOutput(entry), nil
}

func (s *Server) handleAdd(ctx context.Context, req *mcp.CallToolRequest, input AddInput) (*mcp.CallToolResult, AddOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, AddOutput{}, err
	}

	entry, err := dir.Insert(ctx, input.DN, directory.Attributes(input.Attributes))
	warning, err := splitSyncError(err)
	if err != nil {
		return nil, AddOutput{}, fmt.Errorf("failed to add entry: %w", err)
	}
	return nil, AddOutput{Entry: entryOutput(entry), Warning: warning}, nil
}

func (s *Server) handleModify(ctx context.Context, req *mcp.CallToolRequest, input ModifyInput) (*mcp.CallToolResult, MutationOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, MutationOutput{}, err
	}

	mods := make([]directory.Modification, 0, len(input.Modifications))
	for _, m := range input.Modifications {
		op, err := directory.ParseOperation(m.Operation)
		if err != nil {
			return nil, MutationOutput{}, err
		}
		mods = append(mods, directory.Modification{Attribute: m.Attribute, Operation: op, Values: m.Values})
	}

	ok, err := dir.BatchModify(ctx, input.DN, mods)
	warning, err := splitSyncError(err)
	if err != nil {
		return nil, MutationOutput{}, fmt.Errorf("failed to modify entry: %w", err)
	}
	if !ok {
		return nil, MutationOutput{}, fmt.Errorf("entry not found: %s", input.DN)
	}
	return nil, MutationOutput{
		Message: fmt.Sprintf("Applied %d modification(s) to '%s'", len(mods), input.DN),
		Warning: warning,
	}, nil
}

func (s *Server) handleRename(ctx context.Context, req *mcp.CallToolRequest, input RenameInput) (*mcp.CallToolResult, MutationOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, MutationOutput{}, err
	}

	parent := ""
	if input.NewParent != nil {
		parent = *input.NewParent
	}
	ok, err := dir.Rename(ctx, input.DN, input.NewRDN, parent)
	warning, err := splitSyncError(err)
	if err != nil {
		return nil, MutationOutput{}, fmt.Errorf("failed to rename entry: %w", err)
	}
	if !ok {
		return nil, MutationOutput{}, fmt.Errorf("entry not found: %s", input.DN)
	}
	return nil, MutationOutput{
		Message: fmt.Sprintf("Renamed '%s' to '%s'", input.DN, input.NewRDN),
		Warning: warning,
	}, nil
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, MutationOutput, error) {
	dir, err := s.directory(ctx, input.Directory)
	if err != nil {
		return nil, MutationOutput{}, err
	}

	ok, err := dir.Delete(ctx, input.DN)
	warning, err := splitSyncError(err)
	if err != nil {
		return nil, MutationOutput{}, fmt.Errorf("failed to delete entry: %w", err)
	}
	if !ok {
		return nil, MutationOutput{}, fmt.Errorf("entry not found: %s", input.DN)
	}
	return nil, MutationOutput{
		Message: fmt.Sprintf("Deleted '%s'", input.DN),
		Warning: warning,
	}, nil
}

// Helper function to resolve scope from input parameters
func resolveScopeFromInput(scopeType, base *string) (scope.Scope, error) {
	opts := scope.ScopeOptions{}
	if scopeType != nil {
		opts.Type = *scopeType
	}
	if base != nil {
		opts.Base = *base
	}
	return scope.ResolveScope(opts)
}

func (s *Server) name(requested *string) string {
	if requested != nil && *requested != "" {
		return *requested
	}
	return s.defaultName
}

// directory returns the named directory, setting it up on first use.
func (s *Server) directory(ctx context.Context, requested *string) (*directory.Directory, error) {
	return s.manager.Setup(ctx, s.name(requested))
}

// splitSyncError turns a virtual attribute sync failure into a warning; the
// primary write it accompanies has succeeded.
func splitSyncError(err error) (string, error) {
	var syncErr *directory.SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Error(), nil
	}
	return "", err
}

func entryOutput(e *directory.Entry) EntryOutput {
	attrs := make(map[string][]string, len(e.Attributes))
	for name, values := range e.Attributes {
		attrs[name] = values
	}
	return EntryOutput{
		DN:         e.DN,
		GUID:       e.GUID,
		Attributes: attrs,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  e.UpdatedAt.Format(time.RFC3339),
	}
}
