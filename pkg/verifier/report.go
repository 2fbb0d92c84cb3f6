package verifier

import (
	"fmt"
	"slices"
	"time"

	"github.com/l3aro/bpf-verify/pkg/fixpoint"
	"github.com/l3aro/bpf-verify/pkg/interval"
	"github.com/l3aro/bpf-verify/pkg/program"
)

// Report is the outcome of verifying one program.
type Report struct {
	Name   string `json:"name" msgpack:"name"`
	Source string `json:"source,omitempty" msgpack:"source,omitempty"`
	// Blocks counts the blocks of the analysed graph, entry and exit
	// included.
	Blocks int `json:"blocks" msgpack:"blocks"`
	// ReachableLabels lists the blocks whose invariant is not bottom.
	ReachableLabels []string `json:"reachable_labels" msgpack:"reachable_labels"`
	ExitReachable   bool     `json:"exit_reachable" msgpack:"exit_reachable"`
	// ExitInvariant holds "name=[lo,hi]" for every bounded variable at the
	// exit.
	ExitInvariant []string `json:"exit_invariant" msgpack:"exit_invariant"`
	// ExitPartitions counts the partitions kept at the exit; one when the
	// analysis is not partitioned.
	ExitPartitions int `json:"exit_partitions" msgpack:"exit_partitions"`
	// LoopBound is the largest loop counter value when Terminates is set.
	LoopBound  int64          `json:"loop_bound" msgpack:"loop_bound"`
	Terminates bool           `json:"terminates" msgpack:"terminates"`
	Checked    bool           `json:"termination_checked" msgpack:"termination_checked"`
	Stats      fixpoint.Stats `json:"stats" msgpack:"stats"`
	Duration   time.Duration  `json:"duration" msgpack:"duration"`
	// Failures lists the expectations of the program that did not hold.
	Failures []string `json:"failures,omitempty" msgpack:"failures,omitempty"`

	exit map[string]string
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool { return len(r.Failures) == 0 }

// check compares the report with the expectations of p.
func (r *Report) check(p *program.Program) {
	exp := p.Expect
	if exp == nil {
		return
	}
	names := make([]string, 0, len(exp.Exit))
	for name := range exp.Exit {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		want := exp.Exit[name]
		got, ok := r.exit[name]
		switch {
		case !r.ExitReachable:
			got = interval.Bottom().String()
		case !ok:
			got = interval.Top().String()
		}
		if got != want {
			r.Failures = append(r.Failures, fmt.Sprintf("exit %s: expected %s, got %s", name, want, got))
		}
	}
	if exp.ExitReachable != nil && *exp.ExitReachable != r.ExitReachable {
		r.Failures = append(r.Failures, fmt.Sprintf("exit reachable: expected %t, got %t", *exp.ExitReachable, r.ExitReachable))
	}
	if exp.Terminates != nil && *exp.Terminates != r.Terminates {
		r.Failures = append(r.Failures, fmt.Sprintf("terminates: expected %t, got %t", *exp.Terminates, r.Terminates))
	}
}
