package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/l3aro/bpf-verify/pkg/verifier"
)

var (
	passStyle   = color.New(color.FgGreen, color.Bold)
	failStyle   = color.New(color.FgRed, color.Bold)
	nameStyle   = color.New(color.FgCyan, color.Bold)
	detailStyle = color.New(color.FgHiBlack)
	cachedStyle = color.New(color.FgYellow)
)

// printReport writes the human-readable form of r.
func printReport(w io.Writer, r *verifier.Report, cached bool) {
	status := passStyle.Sprint("PASS")
	if !r.Passed() {
		status = failStyle.Sprint("FAIL")
	}
	fmt.Fprintf(w, "%s %s", status, nameStyle.Sprint(r.Name))
	if r.Source != "" {
		fmt.Fprintf(w, " %s", detailStyle.Sprintf("(%s)", r.Source))
	}
	if cached {
		fmt.Fprintf(w, " %s", cachedStyle.Sprint("[cached]"))
	}
	fmt.Fprintln(w)

	if r.ExitReachable {
		fmt.Fprintf(w, "  exit: {%s}\n", strings.Join(r.ExitInvariant, ", "))
	} else {
		fmt.Fprintln(w, "  exit: unreachable")
	}
	if r.ExitPartitions > 1 {
		fmt.Fprintf(w, "  partitions: %d\n", r.ExitPartitions)
	}
	if r.Checked {
		if r.Terminates {
			fmt.Fprintf(w, "  loop bound: %d\n", r.LoopBound)
		} else {
			fmt.Fprintln(w, "  loop bound: unbounded")
		}
	}
	fmt.Fprintln(w, detailStyle.Sprintf("  %d blocks, %d cycles, %d+%d iterations, %s",
		r.Blocks, r.Stats.Cycles, r.Stats.AscendingIterations, r.Stats.DescendingIterations, r.Duration))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s\n", failStyle.Sprint("-"), f)
	}
}
