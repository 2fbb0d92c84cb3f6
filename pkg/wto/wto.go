// Package wto computes Bourdoncle's weak topological order of a control-flow
// graph. The order drives the fixpoint iterator: vertices are visited in
// order and every cycle is stabilised from its head before moving on.
package wto

import (
	"math"
	"slices"
	"strings"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Graph is the part of a CFG the ordering needs.
type Graph interface {
	Succs(asm.Label) []asm.Label
}

// Component is either a Vertex or a *Cycle.
type Component interface {
	isComponent()
	String() string
}

// Vertex is a single node outside any nested cycle.
type Vertex struct {
	Label asm.Label
}

// Cycle is a strongly connected region entered through Head. Components are
// the body, in order, excluding the head itself.
type Cycle struct {
	Head       asm.Label
	Components []Component
	members    map[asm.Label]struct{}
}

func (Vertex) isComponent() {}
func (*Cycle) isComponent() {}

func (v Vertex) String() string { return v.Label.String() }

func (c *Cycle) String() string {
	parts := []string{c.Head.String()}
	for _, comp := range c.Components {
		parts = append(parts, comp.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Contains reports whether l is the head or belongs to the body, nested
// cycles included.
func (c *Cycle) Contains(l asm.Label) bool {
	_, ok := c.members[l]
	return ok
}

func (c *Cycle) collect(into map[asm.Label]struct{}) {
	into[c.Head] = struct{}{}
	for _, comp := range c.Components {
		switch v := comp.(type) {
		case Vertex:
			into[v.Label] = struct{}{}
		case *Cycle:
			v.collect(into)
		}
	}
}

// WTO is a weak topological order of the nodes reachable from asm.EntryLabel.
type WTO struct {
	Components []Component
	nesting    map[asm.Label][]asm.Label
}

type builder struct {
	g     Graph
	dfn   map[asm.Label]int
	num   int
	stack []asm.Label
}

// New computes the order of g starting at asm.EntryLabel.
func New(g Graph) *WTO {
	b := &builder{g: g, dfn: make(map[asm.Label]int)}
	var top []Component
	b.visit(asm.EntryLabel, &top)
	slices.Reverse(top)

	w := &WTO{Components: top, nesting: make(map[asm.Label][]asm.Label)}
	w.index(top, nil)
	return w
}

// visit is the recursive step of Bourdoncle's algorithm. Components are
// prepended to partition by appending and reversing once it is complete.
func (b *builder) visit(v asm.Label, partition *[]Component) int {
	b.stack = append(b.stack, v)
	b.num++
	b.dfn[v] = b.num
	head := b.num
	loop := false

	for _, s := range b.g.Succs(v) {
		low := b.dfn[s]
		if low == 0 {
			low = b.visit(s, partition)
		}
		if low <= head {
			head = low
			loop = true
		}
	}

	if head == b.dfn[v] {
		b.dfn[v] = math.MaxInt
		top := b.pop()
		if loop {
			for top != v {
				b.dfn[top] = 0
				top = b.pop()
			}
			*partition = append(*partition, b.component(v))
		} else {
			*partition = append(*partition, Vertex{Label: v})
		}
	}
	return head
}

func (b *builder) component(head asm.Label) *Cycle {
	var body []Component
	for _, s := range b.g.Succs(head) {
		if b.dfn[s] == 0 {
			b.visit(s, &body)
		}
	}
	slices.Reverse(body)

	c := &Cycle{Head: head, Components: body, members: make(map[asm.Label]struct{})}
	c.collect(c.members)
	return c
}

func (b *builder) pop() asm.Label {
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return top
}

func (w *WTO) index(comps []Component, heads []asm.Label) {
	for _, comp := range comps {
		switch v := comp.(type) {
		case Vertex:
			w.nesting[v.Label] = heads
		case *Cycle:
			w.nesting[v.Head] = heads
			w.index(v.Components, append(slices.Clone(heads), v.Head))
		}
	}
}

// Nesting returns the heads of the cycles enclosing l, outermost first.
// A head is not part of its own nesting.
func (w *WTO) Nesting(l asm.Label) []asm.Label { return w.nesting[l] }

// Contains reports whether l is ordered, i.e. reachable from the entry.
func (w *WTO) Contains(l asm.Label) bool {
	_, ok := w.nesting[l]
	return ok
}

// Heads returns the head of every cycle, nested ones included, in order.
func (w *WTO) Heads() []asm.Label {
	var heads []asm.Label
	var walk func([]Component)
	walk = func(comps []Component) {
		for _, comp := range comps {
			if c, ok := comp.(*Cycle); ok {
				heads = append(heads, c.Head)
				walk(c.Components)
			}
		}
	}
	walk(w.Components)
	return heads
}

func (w *WTO) String() string {
	parts := make([]string, len(w.Components))
	for i, comp := range w.Components {
		parts[i] = comp.String()
	}
	return strings.Join(parts, " ")
}
