// Package cmd provides the CLI commands for qmx.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/config"
	"github.com/tobil/qmx/internal/index"
	"github.com/tobil/qmx/internal/logging"
	"github.com/tobil/qmx/internal/ollama"
	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/search"
	"github.com/tobil/qmx/internal/store"
	"github.com/tobil/qmx/pkg/version"
)

// app carries state shared by all subcommands.
type app struct {
	cfg       config.Config
	indexName string
	debug     bool
	out       *output.Writer
	logCleanup func()
}

func (a *app) dbPath() (string, error) {
	return a.cfg.DatabasePath(a.indexName)
}

// openStore opens the selected index database with the configured keyword
// backend.
func (a *app) openStore() (*store.Store, error) {
	path, err := a.dbPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path, store.Options{
		KeywordBackend: a.cfg.KeywordBackend,
		BlevePath:      config.BleveIndexPath(path),
	})
}

func (a *app) client() *ollama.Client {
	return ollama.NewClient(a.cfg.OllamaHost, a.cfg.RequestTimeout)
}

func (a *app) models() search.Models {
	return search.Models{
		Embed:    a.cfg.EmbedModel,
		Expander: a.cfg.ExpanderModel,
		Reranker: a.cfg.RerankerModel,
	}
}

// searchEngine builds the retrieval stack: query embeddings go through an
// LRU cache, expansion and reranking hit the Ollama client directly.
func (a *app) searchEngine(st *store.Store, models search.Models) *search.Engine {
	client := a.client()
	cached := ollama.NewCachedEmbedder(client, ollama.DefaultEmbeddingCacheSize)
	return search.New(st, cached, client, models, slog.Default())
}

// indexEngine builds a sync engine. withEmbedder false gives the fast
// index-only mode used by update.
func (a *app) indexEngine(st *store.Store, withEmbedder bool) *index.Engine {
	var embedder ollama.Embedder
	if withEmbedder {
		embedder = a.client()
	}
	return index.New(st, embedder, a.cfg.EmbedModel, slog.Default())
}

// lockedSync acquires the per-database lock and runs a sync over cols.
func (a *app) lockedSync(ctx context.Context, st *store.Store, eng *index.Engine, cols []store.Collection, sink index.ProgressSink) (index.Stats, error) {
	path, err := a.dbPath()
	if err != nil {
		return index.Stats{}, err
	}
	release, err := index.AcquireLock(config.LockPath(path))
	if err != nil {
		return index.Stats{}, err
	}
	defer release()
	return eng.Sync(ctx, cols, sink)
}

// collectionsFor resolves the optional collection argument to a list.
func (a *app) collectionsFor(ctx context.Context, st *store.Store, name string) ([]store.Collection, error) {
	if name != "" {
		c, err := st.GetCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		return []store.Collection{c}, nil
	}
	return st.ListCollections(ctx)
}

// NewRootCmd creates the qmx root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "qmx",
		Short: "Indexed, searchable mirror of your markdown collections",
		Long: `qmx maintains a local search index over directories of markdown
documents. It combines full-text and semantic retrieval, and serves the
index to AI clients over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = config.Load()
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			level := a.cfg.LogLevel
			if a.debug {
				level = "debug"
			}
			cleanup, err := logging.SetupDefault(level)
			if err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}
			a.logCleanup = cleanup

			a.out = output.New(cmd.OutOrStdout())
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logCleanup != nil {
				a.logCleanup()
				a.logCleanup = nil
			}
		},
	}
	cmd.SetVersionTemplate("qmx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.indexName, "index", config.DefaultIndexName, "index database name")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newCollectionCmd(a))
	cmd.AddCommand(newContextCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newUpdateCmd(a))
	cmd.AddCommand(newEmbedCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newVSearchCmd(a))
	cmd.AddCommand(newQueryCmd(a))
	cmd.AddCommand(newGetCmd(a))
	cmd.AddCommand(newMultiGetCmd(a))
	cmd.AddCommand(newLsCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newCleanupCmd(a))
	cmd.AddCommand(newSetupCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context so
// long syncs stop at a safe point.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
