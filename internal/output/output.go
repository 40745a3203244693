// Package output renders search results, listings, and sync progress for
// the CLI in the supported serialization formats.
package output

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tobil/qmx/internal/search"
	"github.com/tobil/qmx/internal/store"
)

// Format selects a result serialization.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatXML      Format = "xml"
	FormatFiles    Format = "files"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV, FormatMarkdown, FormatXML, FormatFiles:
		return Format(s), nil
	case "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (text, json, csv, md, xml, files)", s)
}

// Writer renders CLI output. Write errors to the console are ignored.
type Writer struct {
	out    io.Writer
	styles Styles
}

func New(out io.Writer) *Writer {
	return &Writer{out: out, styles: stylesFor(out)}
}

func (w *Writer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

func (w *Writer) println(s string) {
	_, _ = fmt.Fprintln(w.out, s)
}

// Success prints a confirmation line.
func (w *Writer) Success(format string, args ...any) {
	w.println(w.styles.Success.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning line.
func (w *Writer) Warning(format string, args ...any) {
	w.println(w.styles.Warning.Render("! " + fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (w *Writer) Error(format string, args ...any) {
	w.println(w.styles.Error.Render("✗ " + fmt.Sprintf(format, args...)))
}

// Results renders search hits in the requested format.
func (w *Writer) Results(f Format, results []search.Result) error {
	switch f {
	case FormatJSON:
		return w.writeJSON(results)
	case FormatCSV:
		return w.resultsCSV(results)
	case FormatMarkdown:
		w.resultsMarkdown(results)
	case FormatXML:
		return w.resultsXML(results)
	case FormatFiles:
		for _, r := range results {
			w.println(r.DisplayPath)
		}
	default:
		w.resultsText(results)
	}
	return nil
}

func (w *Writer) resultsText(results []search.Result) {
	if len(results) == 0 {
		w.println(w.styles.Dim.Render("no results"))
		return
	}
	for _, r := range results {
		w.printf("%s %s %s\n",
			w.styles.Score.Render(fmt.Sprintf("%.2f", r.Score)),
			w.styles.Path.Render(r.DisplayPath),
			w.styles.Dim.Render("#"+r.DocID))
		if r.Title != "" {
			w.printf("     %s\n", w.styles.Title.Render(r.Title))
		}
		if r.Snippet != "" {
			w.printf("     %s\n", w.styles.Snippet.Render(r.Snippet))
		}
	}
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *Writer) resultsCSV(results []search.Result) error {
	cw := csv.NewWriter(w.out)
	if err := cw.Write([]string{"docid", "file", "title", "score", "snippet"}); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{r.DocID, r.DisplayPath, r.Title,
			strconv.FormatFloat(r.Score, 'f', 4, 64), r.Snippet}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) resultsMarkdown(results []search.Result) {
	w.println("| Score | File | Title | Snippet |")
	w.println("|-------|------|-------|---------|")
	esc := func(s string) string { return strings.ReplaceAll(s, "|", "\\|") }
	for _, r := range results {
		w.printf("| %.2f | %s | %s | %s |\n",
			r.Score, esc(r.DisplayPath), esc(r.Title), esc(r.Snippet))
	}
}

type xmlResult struct {
	DocID   string  `xml:"docid"`
	File    string  `xml:"file"`
	Title   string  `xml:"title"`
	Score   float64 `xml:"score"`
	Snippet string  `xml:"snippet"`
}

type xmlResults struct {
	XMLName xml.Name    `xml:"results"`
	Results []xmlResult `xml:"result"`
}

func (w *Writer) resultsXML(results []search.Result) error {
	doc := xmlResults{Results: make([]xmlResult, 0, len(results))}
	for _, r := range results {
		doc.Results = append(doc.Results, xmlResult{
			DocID: r.DocID, File: r.DisplayPath, Title: r.Title,
			Score: r.Score, Snippet: r.Snippet,
		})
	}
	enc := xml.NewEncoder(w.out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w.out)
	return nil
}

// Listing renders document listings, text or json.
func (w *Writer) Listing(f Format, docs []store.Document) error {
	if f == FormatJSON {
		type entry struct {
			DocID string `json:"docid"`
			File  string `json:"file"`
			Title string `json:"title"`
			Size  int64  `json:"size"`
		}
		out := make([]entry, 0, len(docs))
		for _, d := range docs {
			out = append(out, entry{DocID: d.DocID, File: d.DisplayPath, Title: d.Title, Size: d.SizeBytes})
		}
		return w.writeJSON(out)
	}
	for _, d := range docs {
		w.printf("%s %s %s\n",
			w.styles.Dim.Render("#"+d.DocID),
			w.styles.Path.Render(d.DisplayPath),
			d.Title)
	}
	return nil
}

// Collections renders collection summaries.
func (w *Writer) Collections(f Format, cols []store.CollectionSummary) error {
	if f == FormatJSON {
		type entry struct {
			Name        string `json:"name"`
			Root        string `json:"root"`
			Mask        string `json:"mask"`
			Files       int    `json:"files"`
			LastUpdated string `json:"last_updated,omitempty"`
		}
		out := make([]entry, 0, len(cols))
		for _, c := range cols {
			out = append(out, entry{Name: c.Name, Root: c.RootPath, Mask: c.Mask,
				Files: c.FileCount, LastUpdated: c.LastUpdated})
		}
		return w.writeJSON(out)
	}
	for _, c := range cols {
		w.printf("%s  %s (%s)  %d file(s)\n",
			w.styles.Path.Render(c.Name), c.RootPath, c.Mask, c.FileCount)
	}
	return nil
}

// Checks renders doctor diagnostics and reports whether all passed.
func (w *Writer) Checks(checks []store.Check) bool {
	ok := true
	for _, c := range checks {
		if c.OK {
			w.Success("%s: %s", c.Name, c.Message)
		} else {
			ok = false
			w.Error("%s: %s", c.Name, c.Message)
		}
	}
	return ok
}

// WindowLines cuts a 1-based line window out of content. max 0 means all
// remaining lines. Numbered lines use a fixed-width gutter.
func WindowLines(content string, from, max int, lineNumbers bool) string {
	lines := strings.Split(content, "\n")
	if from < 1 {
		from = 1
	}
	if from > len(lines) {
		return ""
	}
	end := len(lines)
	if max > 0 && from-1+max < end {
		end = from - 1 + max
	}

	window := lines[from-1 : end]
	if !lineNumbers {
		return strings.Join(window, "\n")
	}
	var b strings.Builder
	for i, line := range window {
		fmt.Fprintf(&b, "%4d | %s", from+i, line)
		if i < len(window)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// HumanSize renders a byte count the way sync progress reports it.
func HumanSize(n int64) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
