package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/config"
	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/scanner"
	"github.com/tobil/qmx/internal/store"
)

// bootstrapEntry pairs a well-known collection with its path context.
type bootstrapEntry struct {
	name    string
	root    string
	context string
}

func bootstrapEntries(notes, meetings, docs string) []bootstrapEntry {
	all := []bootstrapEntry{
		{"notes", notes, "Personal notes and ideas"},
		{"meetings", meetings, "Meeting transcripts and notes"},
		{"docs", docs, "Work documentation"},
	}
	out := all[:0]
	for _, e := range all {
		if e.root != "" {
			out = append(out, e)
		}
	}
	return out
}

func newSetupCmd(a *app) *cobra.Command {
	var (
		notes    string
		meetings string
		docs     string
		mask     string
		noEmbed  bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare qmx: config, data directory, and optional starter collections",
		Long: `Writes the config file and data directory. With --notes, --meetings, or
--docs, also registers those collections with path contexts and runs a
first index pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(config.Path()); os.IsNotExist(err) {
				if err := config.Save(config.Default()); err != nil {
					return err
				}
				a.out.Success("wrote %s", config.Path())
			} else {
				a.out.Success("config present at %s", config.Path())
			}

			if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
				return err
			}
			a.out.Success("data directory %s", a.cfg.DataDir)

			if err := a.client().Ping(cmd.Context()); err != nil {
				a.out.Warning("ollama not reachable at %s", a.client().Host())
				a.out.Warning("keyword search works; run 'qmx embed' once Ollama is up")
			} else {
				a.out.Success("ollama reachable at %s", a.client().Host())
			}

			entries := bootstrapEntries(notes, meetings, docs)
			if len(entries) == 0 {
				cmd.Println()
				cmd.Println("Next steps:")
				cmd.Println("  qmx collection add <name> <path>")
				cmd.Println("  qmx update")
				cmd.Println("  qmx embed")
				return nil
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var cols []store.Collection
			for _, e := range entries {
				abs, err := filepath.Abs(e.root)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", e.root, err)
				}
				if !scanner.RootExists(abs) {
					return fmt.Errorf("%s is not a directory", abs)
				}
				c, err := st.UpsertCollection(cmd.Context(), e.name, abs, mask)
				if err != nil {
					return err
				}
				if err := st.SetContext(cmd.Context(), "qmx://"+e.name, e.context); err != nil {
					return err
				}
				a.out.Success("collection %s -> %s", c.Name, c.RootPath)
				cols = append(cols, c)
			}

			eng := a.indexEngine(st, !noEmbed)
			sink := output.NewSyncPrinter(cmd.OutOrStdout())
			_, err = a.lockedSync(cmd.Context(), st, eng, cols, sink)
			return err
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "path for the notes collection")
	cmd.Flags().StringVar(&meetings, "meetings", "", "path for the meetings collection")
	cmd.Flags().StringVar(&docs, "docs", "", "path for the docs collection")
	cmd.Flags().StringVar(&mask, "mask", scanner.DefaultMask, "glob mask selecting files")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "skip embedding during the first index pass")
	return cmd
}
