package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/choplin/dirsim/internal/directory"
)

func newModifyCmd(flags *globalFlags) *cobra.Command {
	var (
		adds      []string
		replaces  []string
		removes   []string
		removeAll []string
	)

	cmd := &cobra.Command{
		Use:   "modify <name> <dn>",
		Short: "Modify the attributes of an entry",
		Long: `Modify the attributes of an entry in one batch.

Modifications are applied in the order add, replace, remove, remove-all.
Repeating --replace for one attribute replaces it with all the given values;
"--replace name" without a value removes the attribute.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dn := args[0], args[1]

			mods, err := buildModifications(adds, replaces, removes, removeAll)
			if err != nil {
				return err
			}
			if len(mods) == 0 {
				return errors.New("no modifications given (use --add, --replace, --remove or --remove-all)")
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

			ok, err := dir.BatchModify(cmd.Context(), dn, mods)
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

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d modification(s) to '%s'\n", len(mods), dn)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&adds, "add", nil, "Add a value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&replaces, "replace", nil, "Replace an attribute as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&removes, "remove", nil, "Remove a value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&removeAll, "remove-all", nil, "Remove an attribute entirely (repeatable)")

	return cmd
}

func buildModifications(adds, replaces, removes, removeAll []string) ([]directory.Modification, error) {
	var mods []directory.Modification

	groups := []struct {
		op    directory.Operation
		pairs []string
	}{
		{directory.OpAdd, adds},
		{directory.OpReplace, replaces},
		{directory.OpRemove, removes},
	}
	for _, g := range groups {
		grouped, err := groupPairs(g.pairs, g.op == directory.OpReplace)
		if err != nil {
			return nil, err
		}
		for _, m := range grouped {
			m.Operation = g.op
			mods = append(mods, m)
		}
	}

	for _, name := range removeAll {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("--remove-all requires an attribute name")
		}
		mods = append(mods, directory.Modification{Attribute: name, Operation: directory.OpRemoveAll})
	}
	return mods, nil
}

// groupPairs collects name=value pairs into one modification per attribute
// in first-seen order. A bare name is only accepted when allowBare is set.
func groupPairs(pairs []string, allowBare bool) ([]directory.Modification, error) {
	var mods []directory.Modification
	index := map[string]int{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" || (!ok && !allowBare) {
			return nil, fmt.Errorf("invalid modification %q (expected name=value)", pair)
		}

		i, seen := index[name]
		if !seen {
			i = len(mods)
			index[name] = i
			mods = append(mods, directory.Modification{Attribute: name})
		}
		if ok {
			mods[i].Values = append(mods[i].Values, value)
		}
	}
	return mods, nil
}
