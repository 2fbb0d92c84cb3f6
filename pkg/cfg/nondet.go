package cfg

import "github.com/l3aro/bpf-verify/pkg/asm"

// branch returns the conditional jump that makes l a two-way branch in det.
func branch(det *CFG, l asm.Label) (asm.Jmp, asm.Label, bool) {
	if det.NumSuccs(l) != 2 {
		return asm.Jmp{}, asm.Label{}, false
	}
	last, ok := det.Block(l).Last()
	if !ok {
		return asm.Jmp{}, asm.Label{}, false
	}
	jmp, ok := last.(asm.Jmp)
	if !ok || jmp.Cond == nil || !det.HasEdge(l, jmp.Target) {
		return asm.Jmp{}, asm.Label{}, false
	}
	for _, s := range det.Succs(l) {
		if s != jmp.Target {
			return jmp, s, true
		}
	}
	return asm.Jmp{}, asm.Label{}, false
}

// ToNondet returns a copy of det without jump instructions. Every two-way
// branch becomes a pair of edges through singleton blocks that assume the
// jump condition (towards the target) and its negation (towards the
// fallthrough).
func ToNondet(det *CFG) *CFG {
	res := New()
	for _, l := range det.Labels() {
		nb := res.Insert(l)
		for _, ins := range det.Block(l).Instructions {
			if _, isJmp := ins.(asm.Jmp); !isJmp {
				nb.Instructions = append(nb.Instructions, ins)
			}
		}

		for _, p := range det.Preds(l) {
			if _, _, ok := branch(det, p); ok {
				res.AddEdge(asm.JumpLabel(p, l), l)
			} else {
				res.AddEdge(p, l)
			}
		}

		jmp, fall, ok := branch(det, l)
		if !ok {
			for _, s := range det.Succs(l) {
				res.AddEdge(l, s)
			}
			continue
		}
		arms := []struct {
			next asm.Label
			cond asm.Condition
		}{
			{jmp.Target, *jmp.Cond},
			{fall, jmp.Cond.Negate()},
		}
		for _, arm := range arms {
			jl := asm.JumpLabel(l, arm.next)
			jb := res.Insert(jl)
			jb.Instructions = []asm.Instruction{asm.Assume{Cond: arm.cond}}
			res.AddEdge(l, jl)
			res.AddEdge(jl, arm.next)
		}
	}
	return res
}
