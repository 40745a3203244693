package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tobil/qmx/internal/config"
	"github.com/tobil/qmx/internal/ollama"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(config.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "show",
		Aliases: []string{"get"},
		Short:   "Print the effective configuration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			cmd.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(config.Path()); err == nil {
				a.out.Warning("config already exists at %s", config.Path())
				return nil
			}
			if err := config.Save(config.Default()); err != nil {
				return err
			}
			a.out.Success("wrote %s", config.Path())
			return nil
		},
	})

	set := func(use, short string, apply func(*config.Config, string)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <value>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Update(func(c *config.Config) { apply(c, args[0]) }); err != nil {
					return err
				}
				a.out.Success("saved %s", config.Path())
				return nil
			},
		}
	}

	cmd.AddCommand(set("set-host", "Set the Ollama host", func(c *config.Config, v string) {
		c.OllamaHost = ollama.ResolveHost(v, config.DefaultOllamaHost)
	}))
	cmd.AddCommand(set("set-model", "Set the embedding model", func(c *config.Config, v string) {
		c.EmbedModel = v
	}))
	cmd.AddCommand(set("set-expander", "Set the query expansion model", func(c *config.Config, v string) {
		c.ExpanderModel = v
	}))
	cmd.AddCommand(set("set-reranker", "Set the reranking model", func(c *config.Config, v string) {
		c.RerankerModel = v
	}))

	return cmd
}
