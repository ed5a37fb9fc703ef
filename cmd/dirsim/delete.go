package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/choplin/dirsim/internal/directory"
)

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name> <dn>",
		Short: "Delete an entry and its subtree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dn := args[0], args[1]

			// Confirmation prompt
			if !force {
				confirmed, err := confirm(cmd, fmt.Sprintf("Delete '%s' and every entry below it? (y/N) ", dn))
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
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

			ok, err := dir.Delete(cmd.Context(), dn)
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

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted '%s'\n", dn)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}
