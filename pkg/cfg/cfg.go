// Package cfg builds and transforms control-flow graphs of instruction
// sequences: a flat graph with call macros inlined, its non-deterministic
// counterpart with explicit branch assumptions, and chain simplification.
package cfg

import (
	"slices"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Block is a basic block: a label and its straight-line instructions.
type Block struct {
	Label        asm.Label
	Instructions []asm.Instruction
}

// Last returns the final instruction of the block.
func (b *Block) Last() (asm.Instruction, bool) {
	if len(b.Instructions) == 0 {
		return nil, false
	}
	return b.Instructions[len(b.Instructions)-1], true
}

type labelSet map[asm.Label]struct{}

func (s labelSet) sorted() []asm.Label {
	out := make([]asm.Label, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	slices.SortFunc(out, asm.Label.Compare)
	return out
}

// CFG is an arena of blocks indexed by label with explicit predecessor and
// successor mappings. The entry and exit blocks always exist.
type CFG struct {
	blocks map[asm.Label]*Block
	preds  map[asm.Label]labelSet
	succs  map[asm.Label]labelSet
}

// New returns a graph holding only the entry and exit blocks.
func New() *CFG {
	g := &CFG{
		blocks: make(map[asm.Label]*Block),
		preds:  make(map[asm.Label]labelSet),
		succs:  make(map[asm.Label]labelSet),
	}
	g.Insert(asm.EntryLabel)
	g.Insert(asm.ExitLabel)
	return g
}

// Insert returns the block for l, creating an empty one if needed.
func (g *CFG) Insert(l asm.Label) *Block {
	if b, ok := g.blocks[l]; ok {
		return b
	}
	b := &Block{Label: l}
	g.blocks[l] = b
	g.preds[l] = make(labelSet)
	g.succs[l] = make(labelSet)
	return b
}

// Block returns the block for l, or nil.
func (g *CFG) Block(l asm.Label) *Block { return g.blocks[l] }

// Contains reports whether l has a block.
func (g *CFG) Contains(l asm.Label) bool {
	_, ok := g.blocks[l]
	return ok
}

// Len returns the number of blocks, entry and exit included.
func (g *CFG) Len() int { return len(g.blocks) }

// AddEdge links from to to, inserting either block if missing.
func (g *CFG) AddEdge(from, to asm.Label) {
	g.Insert(from)
	g.Insert(to)
	g.succs[from][to] = struct{}{}
	g.preds[to][from] = struct{}{}
}

// RemoveEdge unlinks from and to.
func (g *CFG) RemoveEdge(from, to asm.Label) {
	if s, ok := g.succs[from]; ok {
		delete(s, to)
	}
	if p, ok := g.preds[to]; ok {
		delete(p, from)
	}
}

// HasEdge reports whether from links to to.
func (g *CFG) HasEdge(from, to asm.Label) bool {
	_, ok := g.succs[from][to]
	return ok
}

// Remove deletes the block for l together with all its edges.
func (g *CFG) Remove(l asm.Label) {
	for p := range g.preds[l] {
		delete(g.succs[p], l)
	}
	for s := range g.succs[l] {
		delete(g.preds[s], l)
	}
	delete(g.blocks, l)
	delete(g.preds, l)
	delete(g.succs, l)
}

// Labels returns every label in ascending order.
func (g *CFG) Labels() []asm.Label {
	out := make([]asm.Label, 0, len(g.blocks))
	for l := range g.blocks {
		out = append(out, l)
	}
	slices.SortFunc(out, asm.Label.Compare)
	return out
}

// Preds returns the predecessors of l in ascending order.
func (g *CFG) Preds(l asm.Label) []asm.Label { return g.preds[l].sorted() }

// Succs returns the successors of l in ascending order.
func (g *CFG) Succs(l asm.Label) []asm.Label { return g.succs[l].sorted() }

// NumPreds returns the number of predecessors of l.
func (g *CFG) NumPreds(l asm.Label) int { return len(g.preds[l]) }

// NumSuccs returns the number of successors of l.
func (g *CFG) NumSuccs(l asm.Label) int { return len(g.succs[l]) }

// NumEdges returns the number of edges in the graph.
func (g *CFG) NumEdges() int {
	n := 0
	for _, s := range g.succs {
		n += len(s)
	}
	return n
}

// Clone returns a deep copy of g. Instruction values are shared.
func (g *CFG) Clone() *CFG {
	c := &CFG{
		blocks: make(map[asm.Label]*Block, len(g.blocks)),
		preds:  make(map[asm.Label]labelSet, len(g.preds)),
		succs:  make(map[asm.Label]labelSet, len(g.succs)),
	}
	for l, b := range g.blocks {
		c.blocks[l] = &Block{Label: l, Instructions: slices.Clone(b.Instructions)}
		c.preds[l] = make(labelSet, len(g.preds[l]))
		for p := range g.preds[l] {
			c.preds[l][p] = struct{}{}
		}
		c.succs[l] = make(labelSet, len(g.succs[l]))
		for s := range g.succs[l] {
			c.succs[l][s] = struct{}{}
		}
	}
	return c
}

// Reachable returns the set of labels reachable from the entry.
func (g *CFG) Reachable() map[asm.Label]bool {
	seen := map[asm.Label]bool{asm.EntryLabel: true}
	stack := []asm.Label{asm.EntryLabel}
	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for s := range g.succs[l] {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// prune drops every block unreachable from the entry, keeping the exit.
func (g *CFG) prune() {
	reachable := g.Reachable()
	for l := range g.blocks {
		if !reachable[l] && l != asm.ExitLabel {
			g.Remove(l)
		}
	}
}
