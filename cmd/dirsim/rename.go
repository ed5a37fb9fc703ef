package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/choplin/dirsim/internal/directory"
)

func newRenameCmd(flags *globalFlags) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "rename <name> <dn> <new-rdn>",
		Short: "Rename or move an entry and its subtree",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dn, newRDN := args[0], args[1], args[2]

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

			ok, err := dir.Rename(cmd.Context(), dn, newRDN, parent)
			if err != nil {
				var syncErr *directory.SyncError
				if !errors.As(err, &syncErr) {
					return err
				}
				warn(cmd, err)
			}
			if !ok {
				return fmt.Errorf("entry not found: %s", dn)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Renamed '%s' to '%s'\n", dn, newRDN)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "Move the entry below this DN")

	return cmd
}
