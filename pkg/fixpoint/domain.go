// Package fixpoint runs a forward abstract interpretation over a CFG using
// an interleaved iteration strategy driven by a weak topological order.
package fixpoint

import "github.com/l3aro/bpf-verify/pkg/asm"

// Domain is the lattice contract of abstract values. D is the implementing
// type itself, so operations stay statically typed.
//
// Join, Meet, Widen and Narrow are commutative where the lattice requires it
// and monotone. Widen must force any ascending chain to stabilise; when
// toConstants is set it may stop at intermediate constants instead of
// jumping straight to infinity.
type Domain[D any] interface {
	Bottom() D
	Top() D
	IsBottom() bool
	IsTop() bool
	Leq(D) bool
	Equal(D) bool
	Join(D) D
	Meet(D) D
	Widen(other D, toConstants bool) D
	Narrow(D) D
	// Transfer returns the value after executing ins.
	Transfer(ins asm.Instruction) D
}

// LoopCounter is implemented by domains that can bound loop iterations.
type LoopCounter[D any] interface {
	InitializeLoopCounter(head asm.Label) D
	LoopCountUpperBound() (int64, bool)
}

// LabelKeyed is implemented by domains whose bottom value depends on the
// program point, such as partitioned domains with per-label keys.
type LabelKeyed[D any] interface {
	AtLabel(asm.Label) D
}

// Table maps labels to abstract values.
type Table[D any] map[asm.Label]D
