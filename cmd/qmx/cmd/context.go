package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

func newContextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Attach free-form notes to qmx:// targets",
	}
	cmd.AddCommand(newContextAddCmd(a))
	cmd.AddCommand(newContextListCmd(a))
	cmd.AddCommand(newContextRemoveCmd(a))
	return cmd
}

func newContextAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <target> <note...>",
		Short: "Set the context note for a target",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			target := args[0]
			note := strings.Join(args[1:], " ")
			if err := st.SetContext(cmd.Context(), target, note); err != nil {
				return err
			}
			a.out.Success("context set for %s", target)
			return nil
		},
	}
}

func newContextListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List context notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			contexts, err := st.ListContexts(cmd.Context())
			if err != nil {
				return err
			}
			for _, pc := range contexts {
				cmd.Printf("%s\t%s\n", pc.Target, pc.Value)
			}
			return nil
		},
	}
}

func newContextRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <target>",
		Aliases: []string{"rm"},
		Short:   "Remove the context note for a target",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RemoveContext(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.out.Success("context removed for %s", args[0])
			return nil
		},
	}
}
