package report

import (
	"fmt"
	"io"
	"strings"
)

// SummaryRule separates the per-run lines from the summary.
const SummaryRule = "#################################"

// Printer writes the human-readable progress of a sweep.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// StatusLine formats the line reported for a finished run.
func StatusLine(r Result) string {
	return strings.Join([]string{
		r.Kernel.Name,
		r.Config.Direction,
		r.Config.Factor,
		r.Config.Stride,
		r.Label,
		r.Status(),
	}, " ")
}

// Run prints a finished run, preceded by its failure text if it failed.
func (p *Printer) Run(r Result) {
	if !r.Succeeded() {
		fmt.Fprintln(p.w, r.FailureText())
	}

	fmt.Fprintln(p.w, StatusLine(r))
}

// Summary prints the closing totals.
func (p *Printer) Summary(c Counters) {
	fmt.Fprintln(p.w, SummaryRule)
	fmt.Fprintf(p.w, "%d failures out of %d\n", c.TotalFailures, c.TotalRuns)
}
