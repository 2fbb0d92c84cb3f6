// Package partition provides a domain combinator that keeps disjoint
// partitions of a base domain, split by the value ranges of a few key
// variables. Partitions whose keys agree are merged on join; otherwise
// every operation is applied partition by partition.
package partition

import (
	"cmp"
	"slices"

	"github.com/l3aro/bpf-verify/pkg/asm"
	"github.com/l3aro/bpf-verify/pkg/fixpoint"
	"github.com/l3aro/bpf-verify/pkg/interval"
)

// Base is a domain the combinator can partition.
type Base[B any] interface {
	fixpoint.Domain[B]
	// Interval projects the value onto a named variable.
	Interval(name string) interval.Interval
}

// Config is shared by every value of one analysis.
type Config struct {
	// Keys selects the partition key at each program point.
	Keys KeyMap
	// MaxPartitions bounds the partitions kept by a join; zero means
	// unbounded.
	MaxPartitions int
}

// Value is a list of base values, one per partition, sorted by key.
// It always holds at least one partition.
type Value[B Base[B]] struct {
	cfg   *Config
	key   []string
	parts []B
}

// New wraps base as a single-partition value without key.
func New[B Base[B]](base B, cfg *Config) Value[B] {
	if cfg == nil {
		cfg = &Config{}
	}
	return Value[B]{cfg: cfg, parts: []B{base}}
}

// Key returns the variables partitions are split on.
func (v Value[B]) Key() []string { return v.key }

// Partitions returns the base values. The slice must not be modified.
func (v Value[B]) Partitions() []B { return v.parts }

func (v Value[B]) with(parts []B) Value[B] {
	return Value[B]{cfg: v.cfg, key: v.key, parts: parts}
}

func (v Value[B]) Bottom() Value[B] { return v.with([]B{v.parts[0].Bottom()}) }
func (v Value[B]) Top() Value[B]    { return v.with([]B{v.parts[0].Top()}) }

// AtLabel returns bottom keyed for the program point l.
func (v Value[B]) AtLabel(l asm.Label) Value[B] {
	res := v.Bottom()
	res.key = v.cfg.Keys.For(l)
	return res
}

func (v Value[B]) IsBottom() bool {
	for _, p := range v.parts {
		if !p.IsBottom() {
			return false
		}
	}
	return true
}

func (v Value[B]) IsTop() bool {
	for _, p := range v.parts {
		if !p.IsTop() {
			return false
		}
	}
	return true
}

// merged joins every partition into one base value.
func (v Value[B]) merged() B {
	res := v.parts[0]
	for _, p := range v.parts[1:] {
		res = res.Join(p)
	}
	return res
}

func (v Value[B]) keyOf(p B) []interval.Interval {
	out := make([]interval.Interval, len(v.key))
	for i, name := range v.key {
		out[i] = p.Interval(name)
	}
	return out
}

func compareIntervals(a, b interval.Interval) int {
	switch {
	case a.IsBottom() && b.IsBottom():
		return 0
	case a.IsBottom():
		return 1
	case b.IsBottom():
		return -1
	}
	if c := cmp.Compare(a.Lo, b.Lo); c != 0 {
		return c
	}
	return cmp.Compare(a.Hi, b.Hi)
}

func compareKeys(a, b []interval.Interval) int {
	for i := range a {
		if c := compareIntervals(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// sameBoundaries reports whether v and o split on identical keys.
func (v Value[B]) sameBoundaries(o Value[B]) bool {
	if len(v.parts) != len(o.parts) {
		return false
	}
	for i := range v.parts {
		if compareKeys(v.keyOf(v.parts[i]), v.keyOf(o.parts[i])) != 0 {
			return false
		}
	}
	return true
}

// zip applies f partition by partition when boundaries agree, and to the
// merged values otherwise.
func (v Value[B]) zip(o Value[B], f func(a, b B) B) []B {
	if !v.sameBoundaries(o) {
		return []B{f(v.merged(), o.merged())}
	}
	out := make([]B, len(v.parts))
	for i := range v.parts {
		out[i] = f(v.parts[i], o.parts[i])
	}
	return out
}

func (v Value[B]) all(o Value[B], pred func(a, b B) bool) bool {
	if !v.sameBoundaries(o) {
		return pred(v.merged(), o.merged())
	}
	for i := range v.parts {
		if !pred(v.parts[i], o.parts[i]) {
			return false
		}
	}
	return true
}

// normalize drops bottom partitions, keeping one if nothing else is left.
func (v Value[B]) normalize(parts []B) Value[B] {
	kept := parts[:0:0]
	for _, p := range parts {
		if !p.IsBottom() {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return v.Bottom()
	}
	return v.with(kept)
}

func (v Value[B]) Leq(o Value[B]) bool {
	return v.all(o, func(a, b B) bool { return a.Leq(b) })
}

func (v Value[B]) Equal(o Value[B]) bool {
	return v.all(o, func(a, b B) bool { return a.Equal(b) })
}

// hasKey reports whether some partition pins a key variable to a proper
// range.
func (v Value[B]) hasKey(parts []B) bool {
	for _, p := range parts {
		if p.IsBottom() {
			continue
		}
		for _, k := range v.keyOf(p) {
			if !k.IsBottom() && !k.IsTop() {
				return true
			}
		}
	}
	return false
}

// Join collects the partitions of both sides, sorts them by key and merges
// partitions with equal keys. The key of v is kept; a value without key
// adopts the key of o.
func (v Value[B]) Join(o Value[B]) Value[B] {
	if v.key == nil {
		v.key = o.key
	}

	var parts []B
	for _, p := range append(slices.Clone(v.parts), o.parts...) {
		if !p.IsBottom() {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return v.Bottom()
	}
	if !v.hasKey(parts) {
		res := parts[0]
		for _, p := range parts[1:] {
			res = res.Join(p)
		}
		return v.with([]B{res})
	}

	keys := make(map[int][]interval.Interval, len(parts))
	order := make([]int, len(parts))
	for i, p := range parts {
		order[i] = i
		keys[i] = v.keyOf(p)
	}
	slices.SortStableFunc(order, func(a, b int) int { return compareKeys(keys[a], keys[b]) })

	merged := []B{parts[order[0]]}
	for _, idx := range order[1:] {
		last := len(merged) - 1
		if compareKeys(v.keyOf(merged[last]), keys[idx]) == 0 {
			merged[last] = merged[last].Join(parts[idx])
			continue
		}
		merged = append(merged, parts[idx])
	}
	return v.with(v.bound(merged))
}

// bound merges the closest neighbours until at most MaxPartitions remain.
func (v Value[B]) bound(parts []B) []B {
	limit := v.cfg.MaxPartitions
	for limit > 0 && len(parts) > limit {
		best, bestGap := 0, interval.PosInf
		for i := 0; i+1 < len(parts); i++ {
			if gap := v.gap(parts[i], parts[i+1]); gap < bestGap {
				best, bestGap = i, gap
			}
		}
		parts[best] = parts[best].Join(parts[best+1])
		parts = slices.Delete(parts, best+1, best+2)
	}
	return parts
}

// gap measures how far apart the first key variable of two sorted
// partitions is.
func (v Value[B]) gap(a, b B) int64 {
	ka, kb := a.Interval(v.key[0]), b.Interval(v.key[0])
	if ka.IsBottom() || kb.IsBottom() || ka.Hi == interval.PosInf || kb.Lo == interval.NegInf {
		return interval.PosInf - 1
	}
	if kb.Lo <= ka.Hi {
		return 0
	}
	if d := uint64(kb.Lo) - uint64(ka.Hi); d < uint64(interval.PosInf) {
		return int64(d)
	}
	return interval.PosInf - 1
}

func (v Value[B]) Meet(o Value[B]) Value[B] {
	return v.normalize(v.zip(o, func(a, b B) B { return a.Meet(b) }))
}

func (v Value[B]) Widen(o Value[B], toConstants bool) Value[B] {
	switch {
	case v.IsBottom():
		return o.withKeyOf(v)
	case o.IsBottom():
		return v
	}
	return v.normalize(v.zip(o, func(a, b B) B { return a.Widen(b, toConstants) }))
}

func (v Value[B]) Narrow(o Value[B]) Value[B] {
	return v.normalize(v.zip(o, func(a, b B) B { return a.Narrow(b) }))
}

func (v Value[B]) withKeyOf(o Value[B]) Value[B] {
	if o.key != nil {
		v.key = o.key
	}
	return v
}

// Transfer applies ins to every partition and drops those that become
// unreachable.
func (v Value[B]) Transfer(ins asm.Instruction) Value[B] {
	out := make([]B, len(v.parts))
	for i, p := range v.parts {
		out[i] = p.Transfer(ins)
	}
	return v.normalize(out)
}

// Interval returns the hull of name over all partitions.
func (v Value[B]) Interval(name string) interval.Interval {
	res := interval.Bottom()
	for _, p := range v.parts {
		res = res.Join(p.Interval(name))
	}
	return res
}

// Merged returns the join of every partition.
func (v Value[B]) Merged() B { return v.merged() }

// InitializeLoopCounter merges all partitions and starts the counter of
// head in the result.
func (v Value[B]) InitializeLoopCounter(head asm.Label) Value[B] {
	m := v.merged()
	if counter, ok := any(m).(fixpoint.LoopCounter[B]); ok {
		m = counter.InitializeLoopCounter(head)
	}
	return v.with([]B{m})
}

// LoopCountUpperBound reports the bound of the merged value.
func (v Value[B]) LoopCountUpperBound() (int64, bool) {
	if counter, ok := any(v.merged()).(fixpoint.LoopCounter[B]); ok {
		return counter.LoopCountUpperBound()
	}
	return 0, false
}

func (v Value[B]) String() string {
	type stringer interface{ String() string }
	if s, ok := any(v.merged()).(stringer); ok {
		return s.String()
	}
	return ""
}
