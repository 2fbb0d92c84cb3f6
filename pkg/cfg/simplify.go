package cfg

import "github.com/l3aro/bpf-verify/pkg/asm"

// Simplify collapses maximal chains of blocks linked by single-successor /
// single-predecessor edges into their first block. Entry and exit are never
// merged.
func (g *CFG) Simplify() {
	for _, l := range g.Labels() {
		if !g.Contains(l) || l == asm.EntryLabel || l == asm.ExitLabel {
			continue
		}
		for g.NumSuccs(l) == 1 {
			next := g.Succs(l)[0]
			if next == l || next == asm.ExitLabel || next == asm.EntryLabel || g.NumPreds(next) != 1 {
				break
			}
			b := g.Block(l)
			b.Instructions = append(b.Instructions, g.Block(next).Instructions...)
			for _, s := range g.Succs(next) {
				g.AddEdge(l, s)
			}
			g.Remove(next)
		}
	}
}
