package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tobil/qmx/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := st.Status(cmd.Context())
			if err != nil {
				return err
			}
			path, _ := a.dbPath()
			cmd.Printf("Index:       %s\n", path)
			cmd.Printf("Collections: %d\n", info.Collections)
			cmd.Printf("Documents:   %d\n", info.Documents)
			cmd.Printf("Embedded:    %d\n", info.Embedded)
			cmd.Printf("Contexts:    %d\n", info.Contexts)
			cmd.Printf("Ollama:      %s\n", a.client().Host())
			cmd.Printf("Models:      embed=%s expander=%s reranker=%s\n",
				a.cfg.EmbedModel, a.cfg.ExpanderModel, a.cfg.RerankerModel)
			return nil
		},
	}
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run consistency checks against the index and its collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			// The store checks are local and the Ollama ping is a network
			// round trip, no reason to wait on one for the other. Ollama
			// reachability is advisory; search degrades without it.
			var (
				checks      []store.Check
				ollamaCheck store.Check
			)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				checks = st.Doctor(gctx)
				return nil
			})
			g.Go(func() error {
				if err := a.client().Ping(gctx); err != nil {
					ollamaCheck = store.Check{Name: "ollama", OK: false, Message: err.Error()}
				} else {
					ollamaCheck = store.Check{Name: "ollama", OK: true, Message: a.client().Host()}
				}
				return nil
			})
			_ = g.Wait()
			checks = append(checks, ollamaCheck)

			if !a.out.Checks(checks) {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
}

func newCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned keyword index entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Success("removed %d orphaned entr(ies)", n)
			return nil
		},
	}
}
