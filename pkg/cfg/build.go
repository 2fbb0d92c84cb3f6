package cfg

import (
	"errors"
	"fmt"
	"slices"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

var (
	// ErrFallthrough is returned when the last instruction falls off the
	// program end and an explicit exit is required.
	ErrFallthrough = errors.New("fallthrough in last instruction")
	// ErrIllegalRecursion is returned when a local call re-enters a call
	// site already present in its frame path.
	ErrIllegalRecursion = errors.New("illegal recursion")
	// ErrTooManyFrames is returned when local calls nest too deeply.
	ErrTooManyFrames = errors.New("too many call stack frames")
	// ErrInvalidTarget is returned for jumps and calls to missing instructions.
	ErrInvalidTarget = errors.New("invalid jump target")
)

// BuildOptions configures Build.
type BuildOptions struct {
	// MustHaveExit rejects programs whose last instruction falls through.
	MustHaveExit bool
}

// Build converts an instruction sequence into a deterministic CFG with every
// local call inlined. Blocks only reachable through calls are dropped, so
// every block of the result is reachable from the entry.
func Build(seq []asm.LabeledInstruction, opts BuildOptions) (*CFG, error) {
	g, err := buildFlat(seq, opts)
	if err != nil {
		return nil, err
	}

	// Macro bodies are cloned from the flat graph, never from partially
	// inlined state.
	flat := g.Clone()
	reachable := flat.Reachable()
	for _, li := range seq {
		call, ok := li.Instruction.(asm.CallLocal)
		if !ok || !reachable[li.Label] {
			continue
		}
		if err := inline(g, flat, li.Label, call.Target); err != nil {
			return nil, err
		}
	}

	g.prune()
	return g, nil
}

func buildFlat(seq []asm.LabeledInstruction, opts BuildOptions) (*CFG, error) {
	defined := make(map[asm.Label]bool, len(seq))
	for _, li := range seq {
		if _, undefined := li.Instruction.(asm.Undefined); !undefined {
			defined[li.Label] = true
		}
	}

	g := New()
	var fallingFrom *asm.Label
	first := true
	for _, li := range seq {
		if _, undefined := li.Instruction.(asm.Undefined); undefined {
			continue
		}
		b := g.Insert(li.Label)
		if first {
			first = false
			g.AddEdge(asm.EntryLabel, li.Label)
		}
		b.Instructions = append(b.Instructions, li.Instruction)

		if fallingFrom != nil {
			g.AddEdge(*fallingFrom, li.Label)
			fallingFrom = nil
		}
		if asm.HasFallthrough(li.Instruction) {
			l := li.Label
			fallingFrom = &l
		}
		if target, ok := asm.JumpTarget(li.Instruction); ok {
			if !defined[target] {
				return nil, fmt.Errorf("%s: %w %s", li.Label, ErrInvalidTarget, target)
			}
			g.AddEdge(li.Label, target)
		}
		if call, ok := li.Instruction.(asm.CallLocal); ok && !defined[call.Target] {
			return nil, fmt.Errorf("%s: %w %s", li.Label, ErrInvalidTarget, call.Target)
		}
		if _, ok := li.Instruction.(asm.Exit); ok {
			g.AddEdge(li.Label, asm.ExitLabel)
		}
	}

	if fallingFrom != nil {
		if opts.MustHaveExit {
			return nil, fmt.Errorf("%s: %w", *fallingFrom, ErrFallthrough)
		}
		g.AddEdge(*fallingFrom, asm.ExitLabel)
	}
	return g, nil
}

// inline replaces the local call at site by a copy of the macro body that
// starts at entry. The copy lives in the frame of the call site.
func inline(g, flat *CFG, site, entry asm.Label) error {
	if site.Frames.Contains(site.From) {
		return fmt.Errorf("%s: %w", site, ErrIllegalRecursion)
	}
	if site.Frames.Len()+1 >= asm.MaxCallStackFrames {
		return fmt.Errorf("%s: %w", site, ErrTooManyFrames)
	}
	frames, _ := site.Frames.Push(site.From)
	prefix := frames.Prefix()

	succs := g.Succs(site)
	if len(succs) != 1 {
		return fmt.Errorf("%s: local call must have a single return site, has %d", site, len(succs))
	}
	returnTo := succs[0]

	caller := g.Block(site)
	for i, ins := range caller.Instructions {
		if call, ok := ins.(asm.CallLocal); ok {
			call.FramePrefix = prefix
			caller.Instructions[i] = call
		}
	}

	// Closure of the macro body up to its exit transitions.
	body := []asm.Label{entry}
	seen := map[asm.Label]bool{entry: true}
	for i := 0; i < len(body); i++ {
		for _, next := range flat.Succs(body[i]) {
			if next == asm.ExitLabel || seen[next] {
				continue
			}
			seen[next] = true
			body = append(body, next)
		}
	}

	for _, m := range body {
		clone := g.Insert(m.WithFrames(frames))
		clone.Instructions = cloneInstructions(flat.Block(m).Instructions, frames, prefix)
	}
	for _, m := range body {
		from := m.WithFrames(frames)
		for _, next := range flat.Succs(m) {
			if next == asm.ExitLabel {
				g.AddEdge(from, returnTo)
				continue
			}
			g.AddEdge(from, next.WithFrames(frames))
		}
	}

	g.AddEdge(site, entry.WithFrames(frames))
	g.RemoveEdge(site, returnTo)

	// Nested calls inside the copy.
	for _, m := range body {
		label := m.WithFrames(frames)
		for _, ins := range g.Block(label).Instructions {
			call, ok := ins.(asm.CallLocal)
			if !ok {
				continue
			}
			if err := inline(g, flat, label, call.Target); err != nil {
				return err
			}
		}
	}
	return nil
}

func cloneInstructions(src []asm.Instruction, frames asm.FramePath, prefix string) []asm.Instruction {
	out := slices.Clone(src)
	for i, ins := range out {
		switch v := ins.(type) {
		case asm.Exit:
			v.FramePrefix = prefix
			out[i] = v
		case asm.Jmp:
			v.Target = v.Target.WithFrames(frames)
			out[i] = v
		}
	}
	return out
}
