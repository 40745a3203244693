package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/output"
)

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update [collection]",
		Short: "Scan collections and refresh the text index",
		Long: `Scans collection roots, indexes new and changed documents, and removes
deleted ones. Embeddings are left to 'qmx embed', so update works with
Ollama offline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			cols, err := a.collectionsFor(cmd.Context(), st, name)
			if err != nil {
				return err
			}

			eng := a.indexEngine(st, false)
			sink := output.NewSyncPrinter(cmd.OutOrStdout())
			_, err = a.lockedSync(cmd.Context(), st, eng, cols, sink)
			return err
		},
	}
}

func newEmbedCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "embed [collection]",
		Short: "Sync collections and embed new or changed documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			cols, err := a.collectionsFor(cmd.Context(), st, name)
			if err != nil {
				return err
			}

			if force {
				var colID int64
				if len(cols) == 1 && name != "" {
					colID = cols[0].ID
				}
				n, err := st.ClearEmbeddings(cmd.Context(), colID)
				if err != nil {
					return err
				}
				a.out.Warning("cleared %d embedding(s), re-embedding from scratch", n)
			}

			eng := a.indexEngine(st, true)
			sink := output.NewSyncPrinter(cmd.OutOrStdout())
			_, err = a.lockedSync(cmd.Context(), st, eng, cols, sink)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard stored vectors and re-embed everything")
	return cmd
}
