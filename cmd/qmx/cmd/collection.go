package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/scanner"
)

func newCollectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections"},
		Short:   "Manage document collections",
	}
	cmd.AddCommand(newCollectionAddCmd(a))
	cmd.AddCommand(newCollectionListCmd(a))
	cmd.AddCommand(newCollectionRemoveCmd(a))
	cmd.AddCommand(newCollectionRenameCmd(a))
	return cmd
}

func newCollectionAddCmd(a *app) *cobra.Command {
	var mask string

	cmd := &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a directory as a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, root := args[0], args[1]

			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", root, err)
			}
			if !scanner.RootExists(abs) {
				return fmt.Errorf("%s is not a directory", abs)
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.UpsertCollection(cmd.Context(), name, abs, mask)
			if err != nil {
				return err
			}
			a.out.Success("collection %s -> %s (%s)", c.Name, c.RootPath, c.Mask)
			a.out.Warning("run 'qmx update' to index it")
			return nil
		},
	}
	cmd.Flags().StringVar(&mask, "mask", scanner.DefaultMask, "glob mask selecting files")
	return cmd
}

func newCollectionListCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sums, err := st.ListCollectionSummaries(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.Collections(f, sums)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	return cmd
}

func newCollectionRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a collection and its indexed documents",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.RemoveCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.out.Success("removed collection %s (%d documents)", args[0], n)
			return nil
		},
	}
}

func newCollectionRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RenameCollection(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			a.out.Success("renamed %s to %s", args[0], args[1])
			return nil
		},
	}
}
