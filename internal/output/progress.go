package output

import (
	"fmt"
	"io"

	"github.com/tobil/qmx/internal/index"
)

// SyncPrinter renders indexing progress events on a terminal. It implements
// the sync progress sink.
type SyncPrinter struct {
	out      io.Writer
	styles   Styles
	printing bool
}

var _ index.ProgressSink = (*SyncPrinter)(nil)

func NewSyncPrinter(out io.Writer) *SyncPrinter {
	return &SyncPrinter{out: out, styles: stylesFor(out)}
}

// Plan prints what the sync run is about to do.
func (p *SyncPrinter) Plan(ev index.PlanEvent) {
	if ev.Documents == 0 {
		return
	}
	for _, line := range PlanLines(ev) {
		_, _ = fmt.Fprintln(p.out, line)
	}
}

// PlanLines formats a plan event, one fact per line.
func PlanLines(ev index.PlanEvent) []string {
	return []string{
		fmt.Sprintf("%d documents", ev.Documents),
		fmt.Sprintf("%d chunks", ev.Chunks),
		HumanSize(ev.Bytes),
		fmt.Sprintf("%d documents split", ev.SplitDocuments),
		"Model: " + ev.Model,
	}
}

// Doc overwrites the progress line in place.
func (p *SyncPrinter) Doc(ev index.DocEvent) {
	p.printing = true
	_, _ = fmt.Fprintf(p.out, "\r[%d/%d] %s (%d chunks)",
		ev.Index, ev.Total, ev.DisplayPath, ev.Chunks)
}

// Done terminates the progress line and prints the run summary.
func (p *SyncPrinter) Done(s index.Stats) {
	if p.printing {
		_, _ = fmt.Fprintln(p.out)
		p.printing = false
	}
	_, _ = fmt.Fprintln(p.out, Summary(s))
}

// Summary formats sync stats as a single line.
func Summary(s index.Stats) string {
	line := fmt.Sprintf("Added %d, updated %d, removed %d, unchanged %d (%d embedded, %d failed)",
		s.Added, s.Updated, s.Removed, s.Unchanged, s.Embedded, s.Failed)
	if s.Cancelled {
		line += " [cancelled]"
	}
	return line
}
