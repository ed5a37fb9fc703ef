package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/choplin/dirsim/internal/directory"
	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/scope"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		baseDN     string
		scopeType  string
		attributes []string
		limit      int
		orderBy    string
		descending bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "search <name> [filter]",
		Short: "Search a directory with an LDAP filter",
		Example: `  dirsim search corp "(&(objectClass=user)(cn=jo*))" --base "ou=People,dc=corp,dc=local"
  dirsim search corp --base "cn=John Smith,ou=People,dc=corp,dc=local" --scope read --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			sc, err := scope.ResolveScope(scope.ScopeOptions{Type: scopeType, Base: baseDN})
			if err != nil {
				return err
			}

			q := directory.Query{
				BaseDN:     sc.BaseDN,
				Scope:      sc.Type,
				Attributes: attributes,
				SizeLimit:  limit,
				OrderBy:    orderBy,
				Descending: descending,
			}
			if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
				if q.Filter, err = filter.Parse(args[1]); err != nil {
					return err
				}
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}

			manager, logger, err := openManager(cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				_ = manager.Close()
				_ = logger.Sync()
			}()

			dir, err := manager.Setup(cmd.Context(), name)
			if err != nil {
				return err
			}

			entries, err := dir.Search(cmd.Context(), q)
			if err != nil {
				return err
			}

			if format == "json" {
				return outputJSON(cmd, entries)
			}
			outputTable(cmd, entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&baseDN, "base", "b", "", "Search base DN (the root if omitted)")
	cmd.Flags().StringVarP(&scopeType, "scope", "s", "search", "Scope: read, listing, or search (base, one, and sub are accepted)")
	cmd.Flags().StringSliceVar(&attributes, "attrs", nil, "Attributes to return (comma separated)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries")
	cmd.Flags().StringVar(&orderBy, "order", "", "Attribute to sort by")
	cmd.Flags().BoolVar(&descending, "desc", false, "Sort in descending order")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type searchOutputEntry struct {
	DN         string              `json:"dn"`
	GUID       string              `json:"guid"`
	Attributes map[string][]string `json:"attributes"`
	Created    string              `json:"created"`
	Updated    string              `json:"updated"`
}

func outputJSON(cmd *cobra.Command, entries []*directory.Entry) error {
	output := make([]searchOutputEntry, 0, len(entries))
	for _, e := range entries {
		output = append(output, searchOutputEntry{
			DN:         e.DN,
			GUID:       e.GUID,
			Attributes: e.Attributes,
			Created:    e.CreatedAt.Format(time.RFC3339),
			Updated:    e.UpdatedAt.Format(time.RFC3339),
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func getTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// wrapString wraps a string to fit within maxWidth, accounting for multi-byte characters
func wrapString(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return s
	}

	s = strings.TrimSpace(s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}

	var result strings.Builder
	var currentLine strings.Builder
	currentWidth := 0

	for _, r := range s {
		charWidth := runewidth.RuneWidth(r)
		if currentWidth+charWidth > maxWidth && currentWidth > 0 {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
			currentWidth = 0
		}
		currentLine.WriteRune(r)
		currentWidth += charWidth
	}

	if currentLine.Len() > 0 {
		result.WriteString(currentLine.String())
	}

	return result.String()
}

// columnWidths holds the widths of the DN, attribute and value columns.
type columnWidths struct {
	dn        int
	attribute int
	value     int
}

func calculateColumnWidths(termWidth int, entries []*directory.Entry) columnWidths {
	// Roughly 3 characters of border and padding per column.
	available := termWidth - 3*3

	maxDN, maxAttr := 10, 9
	for _, e := range entries {
		if w := runewidth.StringWidth(e.DN); w > maxDN {
			maxDN = w
		}
		for name := range e.Attributes {
			if w := runewidth.StringWidth(name); w > maxAttr {
				maxAttr = w
			}
		}
	}

	// The DN gets at most half of the line, the attribute name at most 30.
	widths := columnWidths{
		dn:        min(maxDN, max(available/2, 20)),
		attribute: min(maxAttr, 30),
	}
	widths.value = max(available-widths.dn-widths.attribute, 15)
	return widths
}

func outputTable(cmd *cobra.Command, entries []*directory.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	widths := calculateColumnWidths(getTerminalWidth(), entries)

	// Content is wrapped and truncated by hand; go-pretty's WidthMax does not
	// measure multi-byte characters correctly.
	t.AppendHeader(table.Row{"DN", "Attribute", "Values"})

	for _, e := range entries {
		dn := wrapString(e.DN, widths.dn)
		names := e.Attributes.Names()
		if len(names) == 0 {
			t.AppendRow(table.Row{dn, "", ""})
		}
		for i, name := range names {
			cell := dn
			if i > 0 {
				cell = ""
			}
			values := runewidth.Truncate(strings.Join(e.Attributes.Get(name), ", "), widths.value, "...")
			t.AppendRow(table.Row{cell, wrapString(name, widths.attribute), values})
		}
		t.AppendSeparator()
	}

	t.AppendFooter(table.Row{fmt.Sprintf("%d entries", len(entries)), "", ""})
	t.Render()
}
