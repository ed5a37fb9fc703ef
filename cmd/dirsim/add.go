package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/choplin/dirsim/internal/directory"
)

func newAddCmd(flags *globalFlags) *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "add <name> <dn>",
		Short: "Create an entry",
		Example: `  dirsim add corp "cn=John Smith,ou=People,dc=corp,dc=local" \
    --attr objectClass=person --attr cn="John Smith" --attr mail=jsmith@corp.local`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dn := args[0], args[1]

			values, err := parseAttributeFlags(attrs)
			if err != nil {
				return err
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

			entry, err := dir.Insert(cmd.Context(), dn, values)
			if err != nil {
				var syncErr *directory.SyncError
				if !errors.As(err, &syncErr) {
					return err
				}
				warn(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entry.DN, entry.GUID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "Attribute value as name=value (repeatable)")

	return cmd
}

// parseAttributeFlags groups name=value pairs by attribute, keeping the
// order in which values were given.
func parseAttributeFlags(pairs []string) (directory.Attributes, error) {
	attrs := directory.Attributes{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q (expected name=value)", pair)
		}
		attrs[name] = append(attrs[name], value)
	}
	return attrs, nil
}
