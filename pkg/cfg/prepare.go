package cfg

import (
	"fmt"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Explicator annotates a deterministic CFG in place, typically by inserting
// assertions before instructions that need them.
type Explicator func(*CFG) error

// PrepareOptions configures Prepare.
type PrepareOptions struct {
	// Simplify merges straight-line chains into single blocks.
	Simplify bool
	// MustHaveExit rejects programs whose last instruction falls through.
	MustHaveExit bool
	// Explicate runs on the deterministic graph before branches are
	// made non-deterministic. Optional.
	Explicate Explicator
}

// Prepare builds the analysis-ready CFG of seq: inline local calls, annotate,
// turn conditional jumps into guarded edges and optionally simplify.
func Prepare(seq []asm.LabeledInstruction, opts PrepareOptions) (*CFG, error) {
	det, err := Build(seq, BuildOptions{MustHaveExit: opts.MustHaveExit})
	if err != nil {
		return nil, err
	}
	if opts.Explicate != nil {
		if err := opts.Explicate(det); err != nil {
			return nil, fmt.Errorf("explicate assertions: %w", err)
		}
	}
	g := ToNondet(det)
	if opts.Simplify {
		g.Simplify()
	}
	return g, nil
}
