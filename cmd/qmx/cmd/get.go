package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/output"
	"github.com/tobil/qmx/internal/store"
)

// lsCap bounds listing output.
const lsCap = 500

func newGetCmd(a *app) *cobra.Command {
	var (
		from        int
		maxLines    int
		lineNumbers bool
	)

	cmd := &cobra.Command{
		Use:   "get <file>",
		Short: "Print one document by display path, relative path, or #docid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			d, err := st.GetByRef(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Println(output.WindowLines(d.Content, from, maxLines, lineNumbers))
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 1, "first line of the window (1-based)")
	cmd.Flags().IntVarP(&maxLines, "lines", "l", 0, "maximum lines to print, 0 for all")
	cmd.Flags().BoolVar(&lineNumbers, "line-numbers", false, "prefix lines with their numbers")
	return cmd
}

func newMultiGetCmd(a *app) *cobra.Command {
	var (
		maxLines    int
		maxBytes    int
		lineNumbers bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "multi-get <pattern|file>...",
		Short: "Print several documents, separated by headers",
		Long: `Prints documents resolved from display paths, #docids, comma lists, and
GLOB patterns. Documents larger than --max-bytes are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			docs, missing, err := st.ResolveRefs(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, token := range missing {
				a.out.Warning("not found: %s", token)
			}

			kept := docs[:0]
			for _, d := range docs {
				if maxBytes > 0 && len(d.Content) > maxBytes {
					continue
				}
				kept = append(kept, d)
			}
			if len(kept) == 0 {
				return store.ErrNotFound
			}

			if asJSON {
				type entry struct {
					DocID       string `json:"docid"`
					DisplayPath string `json:"file"`
					Title       string `json:"title"`
					Content     string `json:"content"`
				}
				entries := make([]entry, 0, len(kept))
				for _, d := range kept {
					entries = append(entries, entry{
						DocID:       d.DocID,
						DisplayPath: d.DisplayPath,
						Title:       d.Title,
						Content:     output.WindowLines(d.Content, 1, maxLines, lineNumbers),
					})
				}
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			for _, d := range kept {
				cmd.Printf("==> %s <==\n", d.DisplayPath)
				cmd.Println(output.WindowLines(d.Content, 1, maxLines, lineNumbers))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxLines, "lines", "l", 0, "maximum lines per document, 0 for all")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 10240, "skip documents larger than this, 0 for no cap")
	cmd.Flags().BoolVar(&lineNumbers, "line-numbers", false, "prefix lines with their numbers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of headers and text")
	return cmd
}

func newLsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ls [pattern]",
		Short: "List indexed documents, optionally filtered by glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var pattern string
			if len(args) == 1 {
				pattern = args[0]
			}
			docs, err := st.ListDocs(cmd.Context(), pattern, lsCap)
			if err != nil {
				return err
			}
			return a.out.Listing(f, docs)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	return cmd
}
