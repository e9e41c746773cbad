package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable renders every run as one row of a table.
func WriteTable(w io.Writer, results []Result) {
	t := table.NewWriter()
	t.SetTitle("Runs")
	t.AppendHeader(table.Row{
		"#", "Suite", "Kernel", "Dir", "Factor", "Stride", "Occupancy",
		"Exit", "Duration", "Peak RSS", "Status",
	})

	failures := 0
	for i, r := range results {
		if !r.Succeeded() {
			failures++
		}

		t.AppendRow(table.Row{
			i + 1,
			r.Kernel.Suite,
			r.Kernel.Name,
			r.Config.Direction,
			r.Config.Factor,
			r.Config.Stride,
			r.Label,
			r.Outcome.ExitCode,
			r.Outcome.Duration.Round(time.Millisecond),
			formatBytes(r.Outcome.PeakRSS),
			r.Status(),
		})
	}

	t.AppendFooter(table.Row{
		"", "", "", "", "", "", "", "", "", "Failures",
		fmt.Sprintf("%d/%d", failures, len(results)),
	})

	fmt.Fprintln(w, t.Render())
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
