package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/search"
)

type searchFlags struct {
	limit      int
	all        bool
	minScore   float64
	collection string
	format     string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.limit, "limit", "n", search.DefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&f.all, "all", false, "return all results")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "drop results scoring below this")
	cmd.Flags().StringVarP(&f.collection, "collection", "c", "", "restrict to one collection")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format (text, json, csv, md, xml, files)")
}

func (f *searchFlags) options() search.Options {
	return search.Options{
		Collection: f.collection,
		Limit:      f.limit,
		All:        f.all,
		MinScore:   f.minScore,
	}
}

type searchFunc func(ctx context.Context, eng *search.Engine, query string, opts search.Options) ([]search.Result, error)

func (a *app) runSearch(cmd *cobra.Command, args []string, flags *searchFlags, models search.Models, fn searchFunc) error {
	format, err := output.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return cmd.Help()
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := fn(cmd.Context(), a.searchEngine(st, models), query, flags.options())
	if err != nil {
		return err
	}
	return a.out.Results(format, results)
}

func newSearchCmd(a *app) *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, args, flags, a.models(),
				func(ctx context.Context, eng *search.Engine, q string, opts search.Options) ([]search.Result, error) {
					return eng.Keyword(ctx, q, opts)
				})
		},
	}
	flags.register(cmd)
	return cmd
}

func newVSearchCmd(a *app) *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "vsearch <query>",
		Short: "Semantic search over embedded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, args, flags, a.models(),
				func(ctx context.Context, eng *search.Engine, q string, opts search.Options) ([]search.Result, error) {
					return eng.Vector(ctx, q, opts)
				})
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	flags := &searchFlags{}
	var (
		noExpand      bool
		noRerank      bool
		expanderModel string
		rerankerModel string
	)
	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Hybrid search: keyword and semantic retrieval, fused and reranked",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models := a.models()
			if expanderModel != "" {
				models.Expander = expanderModel
			}
			if rerankerModel != "" {
				models.Reranker = rerankerModel
			}
			if noExpand {
				models.Expander = ""
			}
			if noRerank {
				models.Reranker = ""
			}
			return a.runSearch(cmd, args, flags, models,
				func(ctx context.Context, eng *search.Engine, q string, opts search.Options) ([]search.Result, error) {
					return eng.Hybrid(ctx, q, opts)
				})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noExpand, "no-expand", false, "skip multi-query expansion")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "skip LLM reranking")
	cmd.Flags().StringVar(&expanderModel, "expander-model", "", "override the expansion model")
	cmd.Flags().StringVar(&rerankerModel, "reranker-model", "", "override the reranking model")
	return cmd
}
