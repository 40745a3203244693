package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce time.Duration
		embed    bool
	)

	cmd := &cobra.Command{
		Use:   "watch [collection]",
		Short: "Watch collection roots and re-sync on changes",
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
			if len(cols) == 0 {
				return errors.New("no collections to watch")
			}

			w, err := watcher.New(debounce, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			for _, c := range cols {
				if err := w.AddRoot(c.RootPath); err != nil {
					return err
				}
				a.out.Success("watching %s (%s)", c.Name, c.RootPath)
			}

			eng := a.indexEngine(st, embed)
			sink := output.NewSyncPrinter(cmd.OutOrStdout())

			// Initial sync so the watch starts from a current index.
			if _, err := a.lockedSync(cmd.Context(), st, eng, cols, sink); err != nil {
				return err
			}

			err = w.Run(cmd.Context(), func(ctx context.Context) error {
				_, err := a.lockedSync(ctx, st, eng, cols, sink)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before re-syncing")
	cmd.Flags().BoolVar(&embed, "embed", false, "embed changed documents during re-sync")
	return cmd
}
