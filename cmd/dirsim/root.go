package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/config"
	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/registry"
)

type globalFlags struct {
	envFile string
	storage string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "dirsim",
		Short:        "dirsim - An LDAP directory emulator backed by SQLite",
		Long:         "dirsim stores directory entries in SQLite and answers LDAP-style searches and mutations against them.",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Load configuration from a dotenv file")
	cmd.PersistentFlags().StringVar(&flags.storage, "storage", string(database.StorageFile), "Storage mode: memory or file")
	cmd.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(newSetupCmd(flags))
	cmd.AddCommand(newTeardownCmd(flags))
	cmd.AddCommand(newAddCmd(flags))
	cmd.AddCommand(newModifyCmd(flags))
	cmd.AddCommand(newRenameCmd(flags))
	cmd.AddCommand(newDeleteCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newMCPCmd(flags))

	return cmd
}

// openManager builds the registry from the environment and the global
// flags. The CLI stores directories in files unless told otherwise, since
// every invocation is a separate process.
func openManager(cmd *cobra.Command, flags *globalFlags) (*registry.Manager, *zap.Logger, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Changed("storage") || os.Getenv("DIRSIM_STORAGE") == "" {
		mode, err := database.ParseStorageMode(flags.storage)
		if err != nil {
			return nil, nil, err
		}
		cfg.DefaultStorage = mode
	}

	logger := zap.NewNop()
	if flags.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, nil, err
		}
	}

	return registry.New(cfg, registry.WithLogger(logger)), logger, nil
}
