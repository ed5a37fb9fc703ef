package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSetupCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup <name>",
		Short: "Provision a named directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

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
			n, err := dir.Count(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Directory '%s' is ready (%d entries)\n", name, n)
			return nil
		},
	}

	return cmd
}

func newTeardownCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "teardown <name>",
		Short: "Remove a named directory and all of its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if !force {
				confirmed, err := confirm(cmd, fmt.Sprintf("Remove directory '%s' and all of its entries? (y/N) ", name))
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Teardown cancelled")
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

			if err := manager.Teardown(name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Directory '%s' torn down\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

func confirm(cmd *cobra.Command, message string) (bool, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	fmt.Fprint(cmd.ErrOrStderr(), message)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}

	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y", nil
}

// warn reports a failed virtual attribute sync without failing the command.
func warn(cmd *cobra.Command, err error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
}
