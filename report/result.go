// Package report collects the outcomes of a sweep and renders them.
package report

import (
	"strings"

	"github.com/sarchlab/coarsebench/executor"
	"github.com/sarchlab/coarsebench/kernel"
	"github.com/sarchlab/coarsebench/matrix"
)

// Result is one finished run of the toolchain.
type Result struct {
	Kernel kernel.Spec

	// Config is the effective configuration, with any kernel override
	// already applied.
	Config matrix.RunConfig

	// Label is the occupancy label "<blocks>/<blocksPerSM>@<threads>".
	Label string

	Outcome executor.Outcome

	// FollowUp marks the runs issued by the occupancy-reduction search.
	FollowUp bool

	// Err is a harness-side problem attached to the run, such as a malformed
	// occupancy report. A run with Err set is a failure.
	Err error
}

// Succeeded tells whether the run counts as a success.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Outcome.Succeeded()
}

// FailureText is the text shown above the status line of a failed run. The
// child's output is used when the outcome carries no message of its own.
func (r Result) FailureText() string {
	text := r.Outcome.Stderr
	if text == "" {
		text = strings.TrimRight(r.Outcome.Stdout, "\n")
	}
	if r.Err != nil {
		if text != "" {
			text += "\n"
		}
		text += r.Err.Error()
	}

	return text
}

// Status is "Ok!" or "Failure".
func (r Result) Status() string {
	if r.Succeeded() {
		return "Ok!"
	}

	return "Failure"
}
